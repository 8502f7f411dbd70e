// Package app wires configuration into the stores, providers and pipeline that the
// api server, the Temporal worker and labctl share.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"labflow/internal/blob"
	"labflow/internal/config"
	"labflow/internal/extraction"
	"labflow/internal/models"
	"labflow/internal/persist"
	"labflow/internal/pipeline"
	"labflow/internal/providers"
	"labflow/internal/status"
	"labflow/internal/storage"
)

type FileStore interface {
	RegisterFile(ctx context.Context, f models.FileJob) error
	GetFile(ctx context.Context, fileID string) (models.FileJob, error)
	ListSessionFiles(ctx context.Context, sessionID string) ([]models.FileJob, error)
}

type StatusStore interface {
	status.Store
	GetStatus(ctx context.Context, fileID, sessionID string) (*models.FileStatusRecord, error)
}

type App struct {
	Config    config.Config
	Logger    *slog.Logger
	DB        *storage.DB
	Files     FileStore
	Statuses  StatusStore
	Blobs     blob.Store
	Providers *providers.Manager
	Tracker   *status.Tracker
	Processor *pipeline.Processor

	closers []func() error
}

// Build opens the configured backends. Close releases them.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	var (
		patients  persist.PatientStore
		reports   persist.ReportStore
		snapshots persist.SnapshotStore
		audit     providers.AuditSink
	)
	switch strings.ToLower(cfg.StoreBackend) {
	case "", "postgres":
		db, err := storage.NewDB(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		a.DB = db
		a.closers = append(a.closers, func() error { db.Close(); return nil })
		if cfg.EnsureSchema {
			if err := db.EnsureSchema(ctx); err != nil {
				_ = a.Close()
				return nil, err
			}
		}
		repos := storage.NewRepos(db)
		a.Files, a.Statuses = repos.Files, repos.Status
		patients, reports, snapshots, audit = repos.Patients, repos.Reports, repos.Snapshots, repos.Audit
	case "memory":
		mem := storage.NewMemoryStore()
		a.Files, a.Statuses = mem, mem
		patients, reports, snapshots, audit = mem, mem, mem, mem
		logger.Warn("using in-memory store, data is lost on exit")
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}

	blobs, err := openBlobs(ctx, cfg, logger, a)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Blobs = blobs

	pm, err := providers.NewManager(cfg, audit, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Providers = pm

	a.Tracker = status.NewTracker(a.Statuses, logger)
	router := pipeline.NewRouter(pm, pipeline.RouterOptions{
		Extraction: extraction.Options{
			MinChars:     cfg.MinTextChars,
			WarnChars:    cfg.WarnTextChars,
			PDFTextLayer: cfg.PDFTextLayer,
			Logger:       logger,
		},
		MaxParseChars: cfg.MaxParseChars,
		Logger:        logger,
	})
	writer := persist.NewWriter(patients, reports, snapshots, logger)
	a.Processor = pipeline.NewProcessor(a.Files, a.Statuses, a.Blobs, router, writer, a.Tracker, logger)
	return a, nil
}

func openBlobs(ctx context.Context, cfg config.Config, logger *slog.Logger, a *App) (blob.Store, error) {
	switch strings.ToLower(cfg.BlobBackend) {
	case "", "local":
		return blob.NewLocalStore(cfg.BlobRoot)
	case "gcs":
		s, closeFn, err := blob.NewGCSStore(ctx, cfg.GCSBucket, logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeFn)
		return s, nil
	case "memory":
		return blob.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported blob backend: %s", cfg.BlobBackend)
	}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
