package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/TrackBatch/config"
	"github.com/BearBump/TrackBatch/internal/bootstrap"
	"github.com/BearBump/TrackBatch/internal/broker/kafka"
	"github.com/BearBump/TrackBatch/internal/logging"
	"github.com/BearBump/TrackBatch/internal/services/trackings"
)

type trackAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     trackAPIOpts
	svc      *trackings.Service
	consumer *kafka.Consumer
	closers  []func()
}

func mustBootstrapTrackAPI() *trackAPIApp {
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfigFromEnv(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	logging.New(cfg.TrackBatch.LogLevel, cfg.TrackBatch.LogFormat)

	opts := apiOptsFromConfig(cfg)
	opts.swaggerPath = swaggerPath

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	store, closeStore, err := bootstrap.NumberStore(ctx, cfg)
	if err != nil {
		cancel()
		panic(err)
	}
	orchestrator, closeLimiter := bootstrap.Pipeline(cfg)
	svc := trackings.New(store, orchestrator)

	var consumer *kafka.Consumer
	if cfg.Kafka.Host != "" {
		consumer = kafka.NewConsumer(cfg.Kafka.Brokers(), opts.topic, opts.consumerGroup)
	}

	return &trackAPIApp{
		ctx:      ctx,
		cancel:   cancel,
		opts:     opts,
		svc:      svc,
		consumer: consumer,
		closers:  []func(){closeLimiter, closeStore},
	}
}

func apiOptsFromConfig(cfg *config.Config) trackAPIOpts {
	httpAddr := cfg.TrackBatch.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.TrackBatch.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "track-api"
	}
	topic := cfg.Kafka.TrackingUpdatedTopicName
	if topic == "" {
		topic = "tracking.updated"
	}
	return trackAPIOpts{httpAddr: httpAddr, topic: topic, consumerGroup: consumerGroup}
}

func (a *trackAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	for _, c := range a.closers {
		c()
	}
}

func (a *trackAPIApp) Run() error {
	// nil *kafka.Consumer в интерфейсе не равен nil
	if a.consumer == nil {
		return runTrackAPI(a.ctx, a.opts, a.svc, nil)
	}
	return runTrackAPI(a.ctx, a.opts, a.svc, a.consumer)
}
