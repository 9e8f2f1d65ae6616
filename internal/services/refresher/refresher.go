package refresher

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/TrackBatch/internal/broker/messages"
	"github.com/BearBump/TrackBatch/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

type NumberSource interface {
	List(ctx context.Context) ([]string, error)
}

type Batcher interface {
	ProcessNumbers(ctx context.Context, numbers []string) []models.TrackingInfo
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type schedule struct {
	nextCheckAt time.Time
	failCount   int
}

// Refresher periodically re-tracks the saved numbers that are due and publishes
// every result to Kafka. The schedule lives in memory: after a restart every
// number is due once.
type Refresher struct {
	numbers  NumberSource
	batch    Batcher
	producer Producer
	topic    string

	planner *Planner

	pollInterval   time.Duration
	batchSize      int
	publishRetries int
	now            func() time.Time

	triggerCh chan struct{}

	mu    sync.Mutex
	sched map[string]*schedule

	startedAtUnixNano   int64
	lastCycleUnixNano   atomic.Int64
	lastTriggerUnixNano atomic.Int64
	totalCycles         atomic.Int64
	totalChecked        atomic.Int64
	totalPublished      atomic.Int64
	totalErrors         atomic.Int64
	inFlight            atomic.Int64
	lastErrorMu         sync.Mutex
	lastError           string
}

func New(numbers NumberSource, batch Batcher, producer Producer, topic string) *Refresher {
	return &Refresher{
		numbers: numbers, batch: batch, producer: producer, topic: topic,
		planner:           NewPlanner(DefaultPlannerConfig(), nil),
		pollInterval:      30 * time.Second,
		batchSize:         100,
		publishRetries:    10,
		now:               func() time.Time { return time.Now().UTC() },
		triggerCh:         make(chan struct{}, 1),
		sched:             map[string]*schedule{},
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (r *Refresher) WithSettings(pollInterval time.Duration, batchSize int) *Refresher {
	if pollInterval > 0 {
		r.pollInterval = pollInterval
	}
	if batchSize > 0 {
		r.batchSize = batchSize
	}
	return r
}

func (r *Refresher) WithPublishRetries(n int) *Refresher {
	if n > 0 {
		r.publishRetries = n
	}
	return r
}

func (r *Refresher) WithPlanner(p *Planner) *Refresher {
	if p != nil {
		r.planner = p
	}
	return r
}

// Trigger forces an immediate cycle (best-effort, non-blocking).
func (r *Refresher) Trigger() {
	r.lastTriggerUnixNano.Store(time.Now().UTC().UnixNano())
	select {
	case r.triggerCh <- struct{}{}:
	default:
	}
}

type Stats struct {
	StartedAt      time.Time  `json:"startedAt"`
	LastCycleAt    *time.Time `json:"lastCycleAt,omitempty"`
	LastTriggerAt  *time.Time `json:"lastTriggerAt,omitempty"`
	TotalCycles    int64      `json:"totalCycles"`
	TotalChecked   int64      `json:"totalChecked"`
	TotalPublished int64      `json:"totalPublished"`
	TotalErrors    int64      `json:"totalErrors"`
	InFlight       int64      `json:"inFlight"`
	Scheduled      int        `json:"scheduled"`
	LastError      string     `json:"lastError,omitempty"`
}

func (r *Refresher) Stats() Stats {
	st := Stats{
		StartedAt:      time.Unix(0, r.startedAtUnixNano).UTC(),
		TotalCycles:    r.totalCycles.Load(),
		TotalChecked:   r.totalChecked.Load(),
		TotalPublished: r.totalPublished.Load(),
		TotalErrors:    r.totalErrors.Load(),
		InFlight:       r.inFlight.Load(),
	}
	if n := r.lastCycleUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastCycleAt = &t
	}
	if n := r.lastTriggerUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastTriggerAt = &t
	}
	r.mu.Lock()
	st.Scheduled = len(r.sched)
	r.mu.Unlock()
	r.lastErrorMu.Lock()
	st.LastError = r.lastError
	r.lastErrorMu.Unlock()
	return st
}

func (r *Refresher) setLastError(err error) {
	r.lastErrorMu.Lock()
	r.lastError = err.Error()
	r.lastErrorMu.Unlock()
}

func (r *Refresher) Run(ctx context.Context) error {
	t := time.NewTicker(r.pollInterval)
	defer t.Stop()

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			r.RunOnce(ctx)
		case <-r.triggerCh:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce tracks the due numbers and publishes their results.
func (r *Refresher) RunOnce(ctx context.Context) {
	now := r.now()
	r.lastCycleUnixNano.Store(now.UnixNano())
	r.totalCycles.Add(1)

	saved, err := r.numbers.List(ctx)
	if err != nil {
		slog.Error("list saved numbers", "error", err.Error())
		r.setLastError(err)
		return
	}

	due := r.claimDue(saved, now)
	if len(due) == 0 {
		return
	}
	cycleID := uuid.NewString()
	slog.Info("refresh cycle", "cycle_id", cycleID, "due", len(due), "saved", len(saved))

	r.inFlight.Add(int64(len(due)))
	results := r.batch.ProcessNumbers(ctx, due)
	r.inFlight.Add(-int64(len(due)))
	r.totalChecked.Add(int64(len(results)))

	paired := pairResults(due, results)

	checkedAt := r.now()
	for _, n := range due {
		info, ok := paired[n]
		if !ok {
			info = models.ErrorInfo(n, "No result for tracking number")
		}
		next := r.reschedule(n, info, checkedAt)

		msg := messages.TrackingUpdated{
			BatchID:     cycleID,
			CheckedAt:   checkedAt,
			NextCheckAt: next,
			Tracking:    info,
		}
		if err := r.publish(ctx, msg); err != nil {
			r.totalErrors.Add(1)
			r.setLastError(err)
			slog.Error("publish tracking update", "tracking_number", n, "error", err.Error())
			continue
		}
		r.totalPublished.Add(1)
	}
}

// pairResults assigns each result to a due number. Exact ID matches go first; the
// rest (провайдер мог нормализовать номер) fill the leftover numbers in order.
// Paired results carry the saved number as ID.
func pairResults(due []string, results []models.TrackingInfo) map[string]models.TrackingInfo {
	byID := make(map[string][]int, len(results))
	for i, res := range results {
		byID[res.ID] = append(byID[res.ID], i)
	}

	out := make(map[string]models.TrackingInfo, len(due))
	used := make([]bool, len(results))
	var leftover []string
	for _, n := range due {
		q := byID[n]
		if len(q) == 0 {
			leftover = append(leftover, n)
			continue
		}
		out[n] = results[q[0]]
		used[q[0]] = true
		byID[n] = q[1:]
	}

	for i, res := range results {
		if used[i] || len(leftover) == 0 {
			continue
		}
		n := leftover[0]
		leftover = leftover[1:]
		slog.Debug("result paired by position", "tracking_number", n, "result_id", res.ID)
		res.ID = n
		out[n] = res
	}
	return out
}

// claimDue drops numbers that are no longer saved and returns the due ones,
// at most batchSize, in saved order.
func (r *Refresher) claimDue(saved []string, now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keep := make(map[string]struct{}, len(saved))
	due := make([]string, 0, min(len(saved), r.batchSize))
	for _, n := range saved {
		if _, dup := keep[n]; dup {
			continue
		}
		keep[n] = struct{}{}
		if len(due) >= r.batchSize {
			continue
		}
		s, ok := r.sched[n]
		if !ok || !s.nextCheckAt.After(now) {
			due = append(due, n)
		}
	}
	for n := range r.sched {
		if _, ok := keep[n]; !ok {
			delete(r.sched, n)
		}
	}
	return due
}

func (r *Refresher) reschedule(number string, info models.TrackingInfo, at time.Time) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sched[number]
	if !ok {
		s = &schedule{}
		r.sched[number] = s
	}
	if info.HasError {
		s.failCount++
	} else {
		s.failCount = 0
	}
	s.nextCheckAt = at.Add(r.planner.Next(info, s.failCount))
	return s.nextCheckAt
}

// NextCheckAt reports when number is due next; false if it was never checked.
func (r *Refresher) NextCheckAt(number string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sched[number]
	if !ok {
		return time.Time{}, false
	}
	return s.nextCheckAt, true
}

func (r *Refresher) publish(ctx context.Context, msg messages.TrackingUpdated) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal kafka msg")
	}

	// Kafka может быть не готова сразу после старта docker compose.
	var pubErr error
	for i := 0; i < r.publishRetries; i++ {
		if pubErr = r.producer.Publish(ctx, r.topic, msg.Key(), b); pubErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(150*(i+1)) * time.Millisecond):
		}
	}
	return pubErr
}
