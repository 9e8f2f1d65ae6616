// Package bootstrap builds the tracking pipeline from config. Shared by the
// track-api, track-worker and track-cli binaries.
package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/TrackBatch/config"
	"github.com/BearBump/TrackBatch/internal/integrations/carrier"
	"github.com/BearBump/TrackBatch/internal/integrations/carrier/fake"
	"github.com/BearBump/TrackBatch/internal/integrations/ship24"
	"github.com/BearBump/TrackBatch/internal/ratelimit"
	"github.com/BearBump/TrackBatch/internal/services/batch"
	"github.com/BearBump/TrackBatch/internal/services/trackings"
	"github.com/BearBump/TrackBatch/internal/storage/numberfile"
	"github.com/BearBump/TrackBatch/internal/storage/pgnumbers"
	"github.com/pkg/errors"
)

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// NumberStore opens the configured saved-numbers backend.
func NumberStore(ctx context.Context, cfg *config.Config) (trackings.NumberStore, func(), error) {
	switch cfg.Storage.Backend {
	case "", BackendFile:
		path := cfg.Storage.NumbersFile
		if path == "" {
			var err error
			if path, err = numberfile.DefaultPath(); err != nil {
				return nil, nil, err
			}
		}
		st, err := numberfile.New(path)
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	case BackendPostgres:
		st, err := OpenPostgresWithRetry(ctx, cfg.Database.ConnString(), 60*time.Second)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

// OpenPostgresWithRetry waits for postgres to accept connections (docker compose startup).
func OpenPostgresWithRetry(ctx context.Context, connString string, wait time.Duration) (*pgnumbers.Storage, error) {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgnumbers.New(connString)
		if err == nil {
			return st, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, errors.Wrapf(lastErr, "postgres is not ready after %s", wait)
}

// RateLimiter builds the outbound limiter: in-process spacing, plus the shared
// Redis window when enabled.
func RateLimiter(cfg *config.Config) (ship24.RateLimiter, func()) {
	local := ratelimit.New(cfg.RateLimit.RequestsPerSecond)
	if !cfg.RateLimit.RedisEnabled {
		return local, func() {}
	}
	shared := ratelimit.NewRedisLimiter(cfg.Redis.Addr(), cfg.RateLimit.RedisPrefix, cfg.RateLimit.RequestsPerSecond)
	return ratelimit.Chain{local, shared}, func() { _ = shared.Close() }
}

// CarrierClient returns the Ship24 client, or the offline fake when no API key
// is configured or use_fake is set.
func CarrierClient(cfg *config.Config, limiter ship24.RateLimiter) carrier.Client {
	if cfg.Ship24.UseFake || cfg.Ship24.APIKey == "" {
		slog.Warn("ship24 api key not set, using offline fake carrier")
		return fake.New()
	}
	c := ship24.New(cfg.Ship24.BaseURL, cfg.Ship24.APIKey, limiter)
	if cfg.Ship24.TimeoutSeconds > 0 {
		c = c.WithTimeout(time.Duration(cfg.Ship24.TimeoutSeconds) * time.Second)
	}
	return c
}

func Batch(cfg *config.Config, client carrier.Client) *batch.Orchestrator {
	pause := batch.DefaultPause
	if cfg.Batch.PauseMS > 0 {
		pause = time.Duration(cfg.Batch.PauseMS) * time.Millisecond
	}
	return batch.New(client).WithSettings(cfg.Batch.ChunkSize, pause)
}

// Pipeline wires limiter, client and batch in one go.
func Pipeline(cfg *config.Config) (*batch.Orchestrator, func()) {
	limiter, closeLimiter := RateLimiter(cfg)
	return Batch(cfg, CarrierClient(cfg, limiter)), closeLimiter
}
