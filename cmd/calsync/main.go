// Command calsync syncs Google Calendar events into a memory vault.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/custodia-labs/calsync/internal/adapters/driving/cli"
	"github.com/custodia-labs/calsync/internal/app"
	"github.com/custodia-labs/calsync/internal/config"
	"github.com/custodia-labs/calsync/internal/logger"
	"github.com/custodia-labs/calsync/internal/telemetry"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.Execute(version, bootstrap); err != nil {
		os.Exit(1)
	}
}

func bootstrap(ctx context.Context, opts cli.Options) (*cli.Services, error) {
	path := opts.ConfigFile
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	logger.Configure(logger.Options{
		Verbose:    opts.Verbose || cfg.Log.Verbose,
		JSON:       cfg.Log.JSON,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	logger.Debug("config loaded from %s", path)

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Warn("telemetry disabled: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		_ = shutdownTelemetry(context.Background())
		return nil, err
	}

	return &cli.Services{
		Sync:     a.Sync,
		FullSync: a.FullSync,
		Channels: a.Channels,
		Status:   a.Status,
		Connect:  a.Flow(os.Stdout),
		Serve:    a.Serve,
		Close: func() error {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			var errs []error
			if err := a.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close storage: %w", err))
			}
			if err := shutdownTelemetry(flushCtx); err != nil {
				errs = append(errs, fmt.Errorf("flush telemetry: %w", err))
			}
			if err := logger.Close(); err != nil {
				errs = append(errs, err)
			}
			return errors.Join(errs...)
		},
	}, nil
}
