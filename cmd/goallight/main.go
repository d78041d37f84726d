package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hkropp/nhl-goal-light/internal/app"
	"github.com/hkropp/nhl-goal-light/internal/config"
	"github.com/hkropp/nhl-goal-light/internal/observability"
	"github.com/hkropp/nhl-goal-light/internal/platform/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.NewJSON(cfg.LogLevel)
	logging.SetDefault(logger)
	defer func() { _ = logger.Sync() }()

	shutdownTracing, err := observability.InitUptrace(cfg, logger)
	if err != nil {
		logger.Error("init uptrace", "error", err)
		os.Exit(1)
	}

	stopProfiler, err := observability.InitPyroscope(cfg, logger)
	if err != nil {
		logger.Error("init pyroscope", "error", err)
		os.Exit(1)
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("build app", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("goal light service starting",
		"run_mode", cfg.RunMode,
		"service_version", cfg.ServiceVersion,
		"environment", cfg.AppEnv,
	)

	runErr := application.Run(ctx)

	application.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown failed", "error", err)
	}
	if err := stopProfiler(); err != nil {
		logger.Warn("profiler stop failed", "error", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("goal light service failed", "error", runErr)
		os.Exit(1)
	}

	logger.Info("goal light service stopped")
}
