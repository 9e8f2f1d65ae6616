package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/BearBump/TrackBatch/config"
	"github.com/BearBump/TrackBatch/internal/bootstrap"
	"github.com/BearBump/TrackBatch/internal/logging"
	"github.com/BearBump/TrackBatch/internal/models"
	"github.com/BearBump/TrackBatch/internal/services/batch"
	"github.com/BearBump/TrackBatch/internal/services/trackings"
)

type cliDeps struct {
	loadConfig func(path string) (*config.Config, error)
	newService func(ctx context.Context, cfg *config.Config) (*trackings.Service, func(), error)
}

func defaultCLIDeps() cliDeps {
	return cliDeps{
		loadConfig: config.LoadConfigFromEnv,
		newService: func(ctx context.Context, cfg *config.Config) (*trackings.Service, func(), error) {
			store, closeStore, err := bootstrap.NumberStore(ctx, cfg)
			if err != nil {
				return nil, nil, err
			}
			b, closeLimiter := bootstrap.Pipeline(cfg)
			return trackings.New(store, b), func() { closeLimiter(); closeStore() }, nil
		},
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer, deps cliDeps) error {
	fs := flag.NewFlagSet("track-cli", flag.ContinueOnError)
	fs.SetOutput(stdout)
	cfgPath := fs.String("config", "", "path to YAML config (optional)")
	save := fs.Bool("save", false, "append the numbers to the saved list")
	saved := fs.Bool("saved", false, "track every saved number")
	numbersFile := fs.String("numbers-file", "", "saved numbers file (overrides config)")
	logLevel := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := deps.loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *numbersFile != "" {
		cfg.Storage.NumbersFile = *numbersFile
	}
	logging.New(resolveLogLevel(fs, *logLevel, cfg.TrackBatch.LogLevel), cfg.TrackBatch.LogFormat)

	svc, closeFn, err := deps.newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	var results []models.TrackingInfo
	if *saved {
		results, err = svc.Refresh(ctx)
	} else {
		numbers := fs.Args()
		if len(numbers) == 0 {
			input, rerr := io.ReadAll(stdin)
			if rerr != nil {
				return rerr
			}
			numbers = batch.SplitInput(string(input))
		}
		if *save && len(numbers) > 0 {
			if _, err := svc.AddNumbers(ctx, numbers); err != nil {
				return err
			}
		}
		results, err = svc.Track(ctx, numbers)
	}
	if err != nil {
		return err
	}

	for _, r := range results {
		fmt.Fprintln(stdout, formatResult(r))
	}
	return nil
}

func formatResult(r models.TrackingInfo) string {
	if r.HasError {
		return strings.Join([]string{r.ID, "ERROR", r.ErrorText()}, "\t")
	}
	return strings.Join([]string{r.ID, r.Status, r.Label}, "\t")
}

// resolveLogLevel: явный -log-level важнее конфига, дефолт флага только как запасной.
func resolveLogLevel(fs *flag.FlagSet, flagLevel, configLevel string) string {
	explicit := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "log-level" {
			explicit = true
		}
	})
	if explicit || configLevel == "" {
		return flagLevel
	}
	return configLevel
}
