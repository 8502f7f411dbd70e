package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	Pool *pgxpool.Pool
}

func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}

// Repos bundles the table repositories over one pool.
type Repos struct {
	Files     *FileRepo
	Status    *StatusRepo
	Patients  *PatientRepo
	Reports   *LabReportRepo
	Snapshots *SnapshotRepo
	Audit     *LLMAuditRepo
}

func NewRepos(db *DB) Repos {
	return Repos{
		Files:     NewFileRepo(db),
		Status:    NewStatusRepo(db),
		Patients:  NewPatientRepo(db),
		Reports:   NewLabReportRepo(db),
		Snapshots: NewSnapshotRepo(db),
		Audit:     NewLLMAuditRepo(db),
	}
}
