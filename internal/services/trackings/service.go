package trackings

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BearBump/TrackBatch/internal/broker/messages"
	"github.com/BearBump/TrackBatch/internal/models"
	"github.com/pkg/errors"
)

const MaxNumbers = 10_000

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
)

// NumberStore keeps the saved tracking numbers (numberfile.Store, pgnumbers.Storage).
type NumberStore interface {
	List(ctx context.Context) ([]string, error)
	Add(ctx context.Context, numbers []string) ([]string, error)
	Remove(ctx context.Context, number string) (bool, error)
}

type Batcher interface {
	ProcessNumbers(ctx context.Context, numbers []string) []models.TrackingInfo
}

type Service struct {
	store NumberStore
	batch Batcher

	// последние результаты из Kafka; только в памяти
	mu     sync.RWMutex
	latest map[string]messages.TrackingUpdated
}

func New(store NumberStore, batch Batcher) *Service {
	return &Service{store: store, batch: batch, latest: map[string]messages.TrackingUpdated{}}
}

func invalid(msg string) error {
	return errors.Wrap(ErrInvalidArgument, msg)
}

// cleanNumbers trims, rejects blanks and drops repeats keeping the first occurrence.
func cleanNumbers(numbers []string) ([]string, error) {
	if len(numbers) == 0 {
		return nil, invalid("numbers is empty")
	}
	if len(numbers) > MaxNumbers {
		return nil, invalid("too many numbers (max 10000)")
	}
	out := make([]string, 0, len(numbers))
	seen := make(map[string]struct{}, len(numbers))
	for _, n := range numbers {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, invalid("trackingNumber is required")
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out, nil
}

func (s *Service) AddNumbers(ctx context.Context, numbers []string) ([]string, error) {
	clean, err := cleanNumbers(numbers)
	if err != nil {
		return nil, err
	}
	return s.store.Add(ctx, clean)
}

func (s *Service) RemoveNumber(ctx context.Context, number string) error {
	number = strings.TrimSpace(number)
	if number == "" {
		return invalid("trackingNumber is required")
	}
	ok, err := s.store.Remove(ctx, number)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(ErrNotFound, "tracking number %q", number)
	}
	return nil
}

func (s *Service) ListNumbers(ctx context.Context) ([]string, error) {
	return s.store.List(ctx)
}

// Track looks up every number (duplicates included) and returns the results in input order.
func (s *Service) Track(ctx context.Context, numbers []string) ([]models.TrackingInfo, error) {
	if len(numbers) > MaxNumbers {
		return nil, invalid("too many numbers (max 10000)")
	}
	in := make([]string, 0, len(numbers))
	for _, n := range numbers {
		if n = strings.TrimSpace(n); n != "" {
			in = append(in, n)
		}
	}
	if len(in) == 0 {
		return nil, invalid("numbers is empty")
	}
	return inInputOrder(in, s.batch.ProcessNumbers(ctx, in)), nil
}

// Refresh tracks every saved number.
func (s *Service) Refresh(ctx context.Context) ([]models.TrackingInfo, error) {
	numbers, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(numbers) == 0 {
		return []models.TrackingInfo{}, nil
	}
	return s.Track(ctx, numbers)
}

// inInputOrder re-keys batch results by tracking number. Results whose ID does not
// match any requested number (provider normalized it) go last.
func inInputOrder(numbers []string, results []models.TrackingInfo) []models.TrackingInfo {
	byID := make(map[string][]models.TrackingInfo, len(results))
	for _, r := range results {
		byID[r.ID] = append(byID[r.ID], r)
	}
	out := make([]models.TrackingInfo, 0, len(results))
	for _, n := range numbers {
		q := byID[n]
		if len(q) == 0 {
			continue
		}
		out = append(out, q[0])
		byID[n] = q[1:]
	}
	for _, r := range results {
		if q := byID[r.ID]; len(q) > 0 {
			out = append(out, q...)
			delete(byID, r.ID)
		}
	}
	return out
}

// ApplyUpdate stores msg unless a newer result for the same number is already known.
func (s *Service) ApplyUpdate(ctx context.Context, msg messages.TrackingUpdated) error {
	if msg.Tracking.ID == "" {
		return invalid("tracking.id is required")
	}
	if msg.CheckedAt.IsZero() {
		msg.CheckedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.latest[msg.Tracking.ID]; ok && cur.CheckedAt.After(msg.CheckedAt) {
		slog.Debug("stale tracking update skipped", "tracking_number", msg.Tracking.ID, "batch_id", msg.BatchID)
		return nil
	}
	s.latest[msg.Tracking.ID] = msg
	return nil
}

// Latest returns the known results for numbers, in the same order; unknown numbers are skipped.
// An empty numbers returns everything known.
func (s *Service) Latest(numbers []string) []messages.TrackingUpdated {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(numbers) == 0 {
		out := make([]messages.TrackingUpdated, 0, len(s.latest))
		for _, m := range s.latest {
			out = append(out, m)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Tracking.ID < out[j].Tracking.ID })
		return out
	}
	out := make([]messages.TrackingUpdated, 0, len(numbers))
	for _, n := range numbers {
		if m, ok := s.latest[strings.TrimSpace(n)]; ok {
			out = append(out, m)
		}
	}
	return out
}
