package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	trackingsapi "github.com/BearBump/TrackBatch/internal/api/trackings_api"
	"github.com/BearBump/TrackBatch/internal/broker/kafka"
	"github.com/BearBump/TrackBatch/internal/broker/messages"
	"github.com/BearBump/TrackBatch/internal/services/trackings"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type trackAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type updatesConsumer interface {
	ConsumeUpdates(ctx context.Context, handler func(ctx context.Context, msg messages.TrackingUpdated) error) error
}

const consumerRestartDelay = 5 * time.Second

// applyUpdate marks updates the service rejects as skippable, so the consumer
// commits them and moves on.
func applyUpdate(svc *trackings.Service) func(ctx context.Context, msg messages.TrackingUpdated) error {
	return func(ctx context.Context, msg messages.TrackingUpdated) error {
		err := svc.ApplyUpdate(ctx, msg)
		if errors.Is(err, trackings.ErrInvalidArgument) {
			return errors.Wrap(kafka.ErrSkipMessage, err.Error())
		}
		return err
	}
}

// consumeUpdates keeps the consumer running until ctx is done, restarting it after
// delay when it stops with an error.
func consumeUpdates(ctx context.Context, consumer updatesConsumer, handler func(ctx context.Context, msg messages.TrackingUpdated) error, delay time.Duration) {
	for {
		err := consumer.ConsumeUpdates(ctx, handler)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			slog.Error("kafka consumer stopped, restarting", "error", err.Error(), "delay", delay.String())
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

func runTrackAPI(ctx context.Context, opts trackAPIOpts, svc *trackings.Service, consumer updatesConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- runHTTPServer(ctx, lis, newRouter(svc, opts.swaggerPath))
	}()

	if consumer != nil {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		go consumeUpdates(ctx, consumer, applyUpdate(svc), consumerRestartDelay)
	}

	select {
	case <-ctx.Done():
		<-httpErr
		return ctx.Err()
	case err := <-httpErr:
		return err
	}
}

func newRouter(svc *trackings.Service, swaggerPath string) chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))

	r.Mount("/v1", trackingsapi.New(svc).Routes())
	return r
}

func runHTTPServer(ctx context.Context, lis net.Listener, h http.Handler) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
