package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BearBump/TrackBatch/config"
	"github.com/BearBump/TrackBatch/internal/logging"
)

func main() {
	cfg, err := config.LoadConfigFromEnv(os.Getenv("configPath"))
	if err != nil {
		panic(fmt.Sprintf("ошибка парсинга конфига, %v", err))
	}
	logging.New(cfg.TrackBatch.LogLevel, cfg.TrackBatch.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	r, closeFn, err := NewRefresher(ctx, cfg, defaultWorkerFactories())
	if err != nil {
		panic(err)
	}
	defer closeFn()

	httpAddr := cfg.TrackBatch.WorkerHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}
	go func() {
		err := runWorkerHTTPServer(ctx, workerHTTPOpts{
			httpAddr:    httpAddr,
			swaggerPath: os.Getenv("swaggerPath"),
			refresher:   r,
			cfg:         cfg,
		})
		if err != nil {
			slog.Error("worker http server", "error", err.Error())
		}
	}()

	if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		panic(err)
	}
}
