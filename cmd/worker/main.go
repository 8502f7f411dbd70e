package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/worker"

	"labflow/internal/activities"
	"labflow/internal/app"
	"labflow/internal/config"
	"labflow/internal/workflows"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.SlogLevel())
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress, Logger: tlog.NewStructuredLogger(logger)})
	if err != nil {
		return err
	}
	defer c.Close()

	a, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{MaxConcurrentActivityExecutionSize: cfg.MaxConcurrent * 2})
	workflows.Register(w)
	activities.Register(w, activities.New(a.Processor))

	logger.Info("labflow worker listening", "temporal", cfg.TemporalAddress, "queue", cfg.TemporalTaskQueue, "providers", a.Providers.Availability())
	return w.Run(worker.InterruptCh())
}
