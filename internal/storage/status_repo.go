package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"labflow/internal/models"
)

type StatusRepo struct {
	db *DB
}

func NewStatusRepo(db *DB) *StatusRepo {
	return &StatusRepo{db: db}
}

// UpsertStatus merges rec into the stored row. Rows already completed or failed are
// left untouched and false is returned.
func (r *StatusRepo) UpsertStatus(ctx context.Context, rec models.FileStatusRecord) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
INSERT INTO file_processing_status (file_id, session_id, file_name, file_type, status, progress, error_message, error_code,
  is_retryable, attempt_number, provider, model, processing_duration_ms, started_at, completed_at, updated_at)
VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, $6, NULLIF($7,''), NULLIF($8,''), $9, $10, NULLIF($11,''), NULLIF($12,''), $13, $14, $15, $16)
ON CONFLICT (file_id, session_id)
DO UPDATE SET
  file_name = COALESCE(EXCLUDED.file_name, file_processing_status.file_name),
  file_type = COALESCE(EXCLUDED.file_type, file_processing_status.file_type),
  status = EXCLUDED.status,
  progress = GREATEST(file_processing_status.progress, EXCLUDED.progress),
  error_message = EXCLUDED.error_message,
  error_code = EXCLUDED.error_code,
  is_retryable = EXCLUDED.is_retryable,
  attempt_number = CASE WHEN EXCLUDED.attempt_number = 0 THEN file_processing_status.attempt_number ELSE EXCLUDED.attempt_number END,
  provider = COALESCE(EXCLUDED.provider, file_processing_status.provider),
  model = COALESCE(EXCLUDED.model, file_processing_status.model),
  processing_duration_ms = CASE WHEN EXCLUDED.processing_duration_ms = 0 THEN file_processing_status.processing_duration_ms ELSE EXCLUDED.processing_duration_ms END,
  started_at = COALESCE(EXCLUDED.started_at, file_processing_status.started_at),
  completed_at = EXCLUDED.completed_at,
  updated_at = EXCLUDED.updated_at
WHERE file_processing_status.status NOT IN ('completed', 'failed')`,
		rec.FileID, rec.SessionID, rec.FileName, rec.FileType, string(rec.Status), rec.Progress, rec.ErrorMessage, rec.ErrorCode,
		rec.IsRetryable, rec.AttemptNumber, rec.Provider, rec.Model, rec.ProcessingDurationMs, rec.StartedAt, rec.CompletedAt, rec.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("upsert file status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *StatusRepo) ResetStatus(ctx context.Context, fileID, sessionID string) (bool, error) {
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE file_processing_status SET
  status = 'pending', progress = 0, error_message = NULL, error_code = NULL, is_retryable = FALSE,
  attempt_number = 0, provider = NULL, model = NULL, processing_duration_ms = 0,
  started_at = NULL, completed_at = NULL, updated_at = NOW()
WHERE file_id=$1 AND session_id=$2 AND status='failed' AND is_retryable`, fileID, sessionID)
	if err != nil {
		return false, fmt.Errorf("reset file status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *StatusRepo) GetStatus(ctx context.Context, fileID, sessionID string) (*models.FileStatusRecord, error) {
	rec, err := scanStatus(r.db.Pool.QueryRow(ctx, `SELECT `+statusColumns+` FROM file_processing_status WHERE file_id=$1 AND session_id=$2`, fileID, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get file status: %w", err)
	}
	return &rec, nil
}

func (r *StatusRepo) ListSessionStatuses(ctx context.Context, sessionID string) ([]models.FileStatusRecord, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+statusColumns+` FROM file_processing_status WHERE session_id=$1 ORDER BY created_at, file_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list file statuses: %w", err)
	}
	defer rows.Close()

	out := make([]models.FileStatusRecord, 0)
	for rows.Next() {
		rec, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file status: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file statuses: %w", err)
	}
	return out, nil
}

const statusColumns = `file_id, session_id, COALESCE(file_name,''), COALESCE(file_type,''), status, progress,
  COALESCE(error_message,''), COALESCE(error_code,''), is_retryable, attempt_number, COALESCE(provider,''), COALESCE(model,''),
  processing_duration_ms, started_at, completed_at, updated_at`

func scanStatus(row pgx.Row) (models.FileStatusRecord, error) {
	var rec models.FileStatusRecord
	var st string
	err := row.Scan(&rec.FileID, &rec.SessionID, &rec.FileName, &rec.FileType, &st, &rec.Progress,
		&rec.ErrorMessage, &rec.ErrorCode, &rec.IsRetryable, &rec.AttemptNumber, &rec.Provider, &rec.Model,
		&rec.ProcessingDurationMs, &rec.StartedAt, &rec.CompletedAt, &rec.UpdatedAt)
	rec.Status = models.FileStatus(st)
	return rec, err
}

// RefreshSessionSummary recomputes the session row from file_processing_status in a
// single statement, so the stored aggregate always matches some committed set of records.
func (r *StatusRepo) RefreshSessionSummary(ctx context.Context, sessionID string) (models.SessionSummary, error) {
	var s models.SessionSummary
	err := r.db.Pool.QueryRow(ctx, `
INSERT INTO processing_sessions (session_id, total_files, completed_files, failed_files, processing_files, pending_files,
  overall_progress, session_status, updated_at)
SELECT $1::text, a.total, a.completed, a.failed, a.processing, a.pending,
  CASE WHEN a.total = 0 THEN 0 ELSE round(a.progress_sum::numeric / a.total)::int END,
  CASE
    WHEN a.total = 0 THEN 'pending'
    WHEN a.failed = a.total THEN 'failed'
    WHEN a.completed + a.failed = a.total THEN 'completed'
    WHEN a.pending = a.total THEN 'pending'
    ELSE 'processing'
  END,
  NOW()
FROM (
  SELECT count(*)::int AS total,
    count(*) FILTER (WHERE status = 'completed')::int AS completed,
    count(*) FILTER (WHERE status = 'failed')::int AS failed,
    count(*) FILTER (WHERE status NOT IN ('completed', 'failed', 'pending', ''))::int AS processing,
    count(*) FILTER (WHERE status IN ('pending', ''))::int AS pending,
    COALESCE(sum(CASE WHEN status IN ('completed', 'failed') THEN 100 ELSE progress END), 0)::int AS progress_sum
  FROM file_processing_status
  WHERE session_id = $1::text
) a
ON CONFLICT (session_id)
DO UPDATE SET
  total_files = EXCLUDED.total_files,
  completed_files = EXCLUDED.completed_files,
  failed_files = EXCLUDED.failed_files,
  processing_files = EXCLUDED.processing_files,
  pending_files = EXCLUDED.pending_files,
  overall_progress = EXCLUDED.overall_progress,
  session_status = EXCLUDED.session_status,
  updated_at = EXCLUDED.updated_at
RETURNING session_id, total_files, completed_files, failed_files, processing_files, pending_files, overall_progress, session_status, updated_at`,
		sessionID).
		Scan(&s.SessionID, &s.TotalFiles, &s.CompletedFiles, &s.FailedFiles, &s.ProcessingFiles, &s.PendingFiles,
			&s.OverallProgress, &s.SessionStatus, &s.UpdatedAt)
	if err != nil {
		return models.SessionSummary{}, fmt.Errorf("refresh session summary: %w", err)
	}
	return s, nil
}

func (r *StatusRepo) GetSessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error) {
	var s models.SessionSummary
	err := r.db.Pool.QueryRow(ctx, `
SELECT session_id, total_files, completed_files, failed_files, processing_files, pending_files, overall_progress, session_status, updated_at
FROM processing_sessions WHERE session_id=$1`, sessionID).
		Scan(&s.SessionID, &s.TotalFiles, &s.CompletedFiles, &s.FailedFiles, &s.ProcessingFiles, &s.PendingFiles,
			&s.OverallProgress, &s.SessionStatus, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session summary: %w", err)
	}
	return &s, nil
}
