// Package batch runs one tracking lookup per number with bounded fan-out and
// converts every outcome, including failures, into a TrackingInfo.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/BearBump/TrackBatch/internal/integrations/carrier"
	"github.com/BearBump/TrackBatch/internal/integrations/ship24"
	"github.com/BearBump/TrackBatch/internal/metrics"
	"github.com/BearBump/TrackBatch/internal/models"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	DefaultChunkSize = 10
	DefaultPause     = 200 * time.Millisecond

	msgParseFailed = "Failed to parse tracking data"
)

type ParseFunc func(body []byte) *models.TrackingInfo

type Orchestrator struct {
	client    carrier.Client
	parse     ParseFunc
	chunkSize int
	pause     time.Duration

	totalBatches atomic.Int64
	totalItems   atomic.Int64
	totalErrors  atomic.Int64
	totalPanics  atomic.Int64
}

func New(client carrier.Client) *Orchestrator {
	return &Orchestrator{
		client:    client,
		parse:     ship24.Parse,
		chunkSize: DefaultChunkSize,
		pause:     DefaultPause,
	}
}

func (o *Orchestrator) WithSettings(chunkSize int, pause time.Duration) *Orchestrator {
	if chunkSize > 0 {
		o.chunkSize = chunkSize
	}
	if pause >= 0 {
		o.pause = pause
	}
	return o
}

// WithParser swaps the body parser. Used by tests and by carriers with a different envelope.
func (o *Orchestrator) WithParser(p ParseFunc) *Orchestrator {
	if p != nil {
		o.parse = p
	}
	return o
}

type Stats struct {
	TotalBatches int64 `json:"totalBatches"`
	TotalItems   int64 `json:"totalItems"`
	TotalErrors  int64 `json:"totalErrors"`
	TotalPanics  int64 `json:"totalPanics"`
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		TotalBatches: o.totalBatches.Load(),
		TotalItems:   o.totalItems.Load(),
		TotalErrors:  o.totalErrors.Load(),
		TotalPanics:  o.totalPanics.Load(),
	}
}

// SplitInput returns the non-empty trimmed lines of input.
func SplitInput(input string) []string {
	lines := strings.Split(input, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func (o *Orchestrator) Process(ctx context.Context, input string) []models.TrackingInfo {
	return o.ProcessNumbers(ctx, SplitInput(input))
}

// ProcessNumbers returns exactly one result per non-empty number, in completion order.
// Duplicates are looked up independently.
func (o *Orchestrator) ProcessNumbers(ctx context.Context, numbers []string) []models.TrackingInfo {
	clean := make([]string, 0, len(numbers))
	for _, n := range numbers {
		if n = strings.TrimSpace(n); n != "" {
			clean = append(clean, n)
		}
	}
	if len(clean) == 0 {
		return []models.TrackingInfo{}
	}

	batchID := uuid.NewString()
	start := time.Now()
	o.totalBatches.Add(1)
	metrics.BatchesTotal.Inc()
	slog.Info("batch started", "batch_id", batchID, "items", len(clean), "chunk_size", o.chunkSize)

	// буфер на весь батч: горутины не блокируются на отправке
	results := make(chan models.TrackingInfo, len(clean))
	dispatched := 0
	for i := 0; i < len(clean); i += o.chunkSize {
		end := min(i+o.chunkSize, len(clean))
		for _, n := range clean[i:end] {
			dispatched++
			go o.track(ctx, n, results)
		}
		if end < len(clean) && o.pause > 0 {
			time.Sleep(o.pause)
		}
	}

	out := make([]models.TrackingInfo, 0, dispatched)
	failed := 0
	for range dispatched {
		r := <-results
		if r.HasError {
			failed++
		}
		out = append(out, r)
	}

	o.totalItems.Add(int64(len(out)))
	o.totalErrors.Add(int64(failed))
	metrics.BatchItemsTotal.WithLabelValues("ok").Add(float64(len(out) - failed))
	metrics.BatchItemsTotal.WithLabelValues("error").Add(float64(failed))
	slog.Info("batch finished", "batch_id", batchID, "items", len(out), "errors", failed, "took", time.Since(start).String())
	return out
}

func (o *Orchestrator) track(ctx context.Context, number string, results chan<- models.TrackingInfo) {
	defer func() {
		if r := recover(); r != nil {
			o.totalPanics.Add(1)
			slog.Error("tracking task panicked", "tracking_number", number, "panic", fmt.Sprint(r))
			results <- models.ErrorInfo(number, fmt.Sprintf("Internal error: %v", r))
		}
	}()
	results <- o.lookup(ctx, number)
}

func (o *Orchestrator) lookup(ctx context.Context, number string) models.TrackingInfo {
	body, err := o.client.Fetch(ctx, number)
	if err != nil {
		return models.ErrorInfo(number, ErrorMessage(err))
	}

	info := o.parse(body)
	if info == nil {
		return models.ErrorInfo(number, msgParseFailed)
	}
	if info.ID == "" {
		info.ID = number
	}
	return *info
}

// ErrorMessage maps a fetch error to the text shown in the error result.
func ErrorMessage(err error) string {
	var (
		rl  *ship24.RateLimitedError
		inv *ship24.InvalidTrackingNumberError
		ne  *ship24.NetworkError
		se  *ship24.ServerError
		ae  *ship24.APIErrorResponse
		pe  *ship24.ParseError
	)
	switch {
	case errors.As(err, &rl):
		return rl.Error()
	case errors.As(err, &inv):
		return inv.Error()
	case errors.Is(err, ship24.ErrNoTrackingData):
		return ship24.ErrNoTrackingData.Error()
	case errors.As(err, &ne):
		return ne.Error()
	case errors.As(err, &se):
		return se.Error()
	case errors.As(err, &ae):
		if ae.Message != "" {
			return ae.Message
		}
		return ae.Code
	case errors.As(err, &pe):
		return pe.Error()
	default:
		return err.Error()
	}
}
