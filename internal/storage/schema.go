package storage

import (
	"context"
	"fmt"
)

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS pgcrypto;

CREATE TABLE IF NOT EXISTS uploaded_files (
  file_id         TEXT PRIMARY KEY,
  session_id      TEXT NOT NULL,
  user_id         TEXT NOT NULL,
  file_name       TEXT NOT NULL,
  file_type       TEXT NOT NULL,
  storage_locator TEXT NOT NULL,
  size_bytes      BIGINT NOT NULL DEFAULT 0,
  content_hash    TEXT,
  created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS uploaded_files_session_idx ON uploaded_files(session_id);

CREATE TABLE IF NOT EXISTS file_processing_status (
  file_id                TEXT NOT NULL,
  session_id             TEXT NOT NULL,
  file_name              TEXT,
  file_type              TEXT,
  status                 TEXT NOT NULL,
  progress               INT NOT NULL DEFAULT 0,
  error_message          TEXT,
  error_code             TEXT,
  is_retryable           BOOLEAN NOT NULL DEFAULT FALSE,
  attempt_number         INT NOT NULL DEFAULT 0,
  provider               TEXT,
  model                  TEXT,
  processing_duration_ms BIGINT NOT NULL DEFAULT 0,
  started_at             TIMESTAMPTZ,
  completed_at           TIMESTAMPTZ,
  created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (file_id, session_id)
);
CREATE INDEX IF NOT EXISTS file_processing_status_session_idx ON file_processing_status(session_id);

CREATE TABLE IF NOT EXISTS processing_sessions (
  session_id       TEXT PRIMARY KEY,
  total_files      INT NOT NULL,
  completed_files  INT NOT NULL,
  failed_files     INT NOT NULL,
  processing_files INT NOT NULL,
  pending_files    INT NOT NULL,
  overall_progress INT NOT NULL,
  session_status   TEXT NOT NULL,
  updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS patients (
  id         UUID PRIMARY KEY,
  user_id    TEXT NOT NULL,
  name       TEXT NOT NULL,
  age        TEXT,
  gender     TEXT,
  contact    TEXT,
  address    TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  UNIQUE (user_id, name)
);

CREATE TABLE IF NOT EXISTS lab_reports (
  id          UUID PRIMARY KEY,
  user_id     TEXT NOT NULL,
  patient_id  UUID REFERENCES patients(id),
  session_id  TEXT NOT NULL,
  file_id     TEXT NOT NULL,
  lab_name    TEXT,
  doctor      TEXT,
  report_id   TEXT,
  report_date DATE,
  test_date   DATE,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS lab_reports_file_idx ON lab_reports(file_id);

CREATE TABLE IF NOT EXISTS test_results (
  id            UUID PRIMARY KEY,
  lab_report_id UUID NOT NULL REFERENCES lab_reports(id) ON DELETE CASCADE,
  panel_name    TEXT,
  test_name     TEXT NOT NULL,
  value         TEXT,
  unit          TEXT,
  range_min     DOUBLE PRECISION,
  range_max     DOUBLE PRECISION,
  range_text    TEXT,
  status        TEXT NOT NULL,
  category      TEXT,
  flagged       BOOLEAN NOT NULL DEFAULT FALSE,
  created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS test_results_report_idx ON test_results(lab_report_id);

CREATE TABLE IF NOT EXISTS parsed_documents (
  id                UUID PRIMARY KEY,
  file_id           TEXT NOT NULL,
  session_id        TEXT NOT NULL,
  user_id           TEXT NOT NULL,
  lab_report_id     UUID REFERENCES lab_reports(id),
  structured_data   JSONB NOT NULL,
  key_metrics       JSONB NOT NULL,
  provider          TEXT,
  model             TEXT,
  attempt_number    INT NOT NULL DEFAULT 0,
  validation_issues JSONB NOT NULL DEFAULT '[]'::jsonb,
  truncated         BOOLEAN NOT NULL DEFAULT FALSE,
  text_length       INT NOT NULL DEFAULT 0,
  created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS llm_calls (
  call_id     UUID PRIMARY KEY DEFAULT gen_random_uuid(),
  operation   TEXT NOT NULL,
  file_id     TEXT,
  session_id  TEXT,
  provider    TEXT NOT NULL,
  model       TEXT,
  status      TEXT NOT NULL,
  error_type  TEXT,
  error       TEXT,
  duration_ms BIGINT NOT NULL DEFAULT 0,
  created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the tables the pipeline writes to. It is idempotent.
func (d *DB) EnsureSchema(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
