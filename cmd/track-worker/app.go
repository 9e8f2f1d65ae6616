package main

import (
	"context"
	"time"

	"github.com/BearBump/TrackBatch/config"
	"github.com/BearBump/TrackBatch/internal/bootstrap"
	"github.com/BearBump/TrackBatch/internal/broker/kafka"
	"github.com/BearBump/TrackBatch/internal/services/refresher"
)

type workerFactories struct {
	newNumbers  func(ctx context.Context, cfg *config.Config) (src refresher.NumberSource, closeFn func(), err error)
	newProducer func(cfg *config.Config) (refresher.Producer, func())
	newBatch    func(cfg *config.Config) (refresher.Batcher, func())
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newNumbers: func(ctx context.Context, cfg *config.Config) (refresher.NumberSource, func(), error) {
			return bootstrap.NumberStore(ctx, cfg)
		},
		newProducer: func(cfg *config.Config) (refresher.Producer, func()) {
			p := kafka.NewProducer(cfg.Kafka.Brokers())
			return p, func() { _ = p.Close() }
		},
		newBatch: func(cfg *config.Config) (refresher.Batcher, func()) {
			return bootstrap.Pipeline(cfg)
		},
	}
}

func plannerFromConfig(cfg *config.Config) *refresher.Planner {
	sec := func(n int) time.Duration { return time.Duration(n) * time.Second }
	return refresher.NewPlanner(refresher.PlannerConfig{
		InTransitMinDelay: sec(cfg.TrackBatch.WorkerNextCheckInTransitMinSeconds),
		InTransitMaxDelay: sec(cfg.TrackBatch.WorkerNextCheckInTransitMaxSeconds),
		UnknownDelay:      sec(cfg.TrackBatch.WorkerNextCheckUnknownSeconds),
		Backoff1:          sec(cfg.TrackBatch.WorkerBackoff1Seconds),
		Backoff2:          sec(cfg.TrackBatch.WorkerBackoff2Seconds),
		Backoff3:          sec(cfg.TrackBatch.WorkerBackoff3Seconds),
		Backoff4:          sec(cfg.TrackBatch.WorkerBackoff4Seconds),
	}, nil)
}

// NewRefresher builds the worker from config; the returned close func releases
// storage, producer and limiter.
func NewRefresher(ctx context.Context, cfg *config.Config, f workerFactories) (*refresher.Refresher, func(), error) {
	topic := cfg.Kafka.TrackingUpdatedTopicName
	if topic == "" {
		topic = "tracking.updated"
	}

	pollInterval := time.Duration(cfg.TrackBatch.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	batchSize := cfg.TrackBatch.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	numbers, closeNumbers, err := f.newNumbers(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	producer, closeProducer := f.newProducer(cfg)
	b, closeBatch := f.newBatch(cfg)

	r := refresher.New(numbers, b, producer, topic).
		WithSettings(pollInterval, batchSize).
		WithPlanner(plannerFromConfig(cfg))

	closeAll := func() {
		closeBatch()
		closeProducer()
		if closeNumbers != nil {
			closeNumbers()
		}
	}
	return r, closeAll, nil
}

func RunTrackWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	r, closeFn, err := NewRefresher(ctx, cfg, f)
	if err != nil {
		return err
	}
	defer closeFn()
	return r.Run(ctx)
}
