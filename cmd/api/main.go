package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"golang.org/x/sync/errgroup"

	"labflow/internal/api"
	"labflow/internal/app"
	"labflow/internal/config"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.SlogLevel())
	defer closeLog()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	var wc api.WorkflowClient
	if cfg.TemporalEnabled {
		c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress, Logger: tlog.NewStructuredLogger(logger)})
		if err != nil {
			return err
		}
		defer c.Close()
		wc = c
	}
	if !cfg.HasProviderCredentials() {
		logger.Warn("no provider credentials configured, /api/process will return config_error")
	}

	srv := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           api.NewServer(a, wc).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("labflow api listening", "addr", cfg.APIAddr, "store", cfg.StoreBackend, "blob", cfg.BlobBackend, "temporal", cfg.TemporalEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.MaxDuration()+5*time.Second)
		defer cancel()
		logger.Info("shutting down api")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
