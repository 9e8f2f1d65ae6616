// Package ratelimit paces outbound tracking API calls.
package ratelimit

import (
	"context"
	"time"

	"github.com/BearBump/TrackBatch/internal/metrics"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const DefaultRequestsPerSecond = 10

// Limiter grants at most one request per interval (1s / requestsPerSecond) across
// all goroutines sharing it.
type Limiter struct {
	rl       *rate.Limiter
	interval time.Duration
}

func New(requestsPerSecond int) *Limiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = DefaultRequestsPerSecond
	}
	interval := time.Second / time.Duration(requestsPerSecond)
	return &Limiter{
		rl:       rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}
}

func (l *Limiter) Interval() time.Duration { return l.interval }

// Wait blocks until the next slot is granted. It fails only when ctx is done
// before the slot comes up.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.rl.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait")
	}
	metrics.RateLimitWaitSeconds.Observe(time.Since(start).Seconds())
	return nil
}

// Waiter is anything that can hold a caller until it may send a request.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Chain waits on every limiter in order, e.g. local pacing plus a shared Redis quota.
type Chain []Waiter

func (c Chain) Wait(ctx context.Context) error {
	for _, w := range c {
		if w == nil {
			continue
		}
		if err := w.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
