package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"labflow/internal/models"
)

type SnapshotRepo struct {
	db *DB
}

func NewSnapshotRepo(db *DB) *SnapshotRepo {
	return &SnapshotRepo{db: db}
}

func (r *SnapshotRepo) InsertSnapshot(ctx context.Context, s models.ParsedDocumentSnapshot) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	issues := s.ValidationIssues
	if issues == nil {
		issues = []string{}
	}
	issuesJSON, err := json.Marshal(issues)
	if err != nil {
		return fmt.Errorf("encode validation issues: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO parsed_documents (id, file_id, session_id, user_id, lab_report_id, structured_data, key_metrics, provider, model,
  attempt_number, validation_issues, truncated, text_length)
VALUES ($1, $2, $3, $4, $5::uuid, $6, $7, NULLIF($8,''), NULLIF($9,''), $10, $11, $12, $13)`,
		s.ID, s.FileID, s.SessionID, s.UserID, s.LabReportID, []byte(s.StructuredData), []byte(s.KeyMetrics), s.Provider, s.Model,
		s.AttemptNumber, issuesJSON, s.Truncated, s.TextLength)
	if err != nil {
		return fmt.Errorf("insert parsed document: %w", err)
	}
	return nil
}

func (r *SnapshotRepo) LatestSnapshot(ctx context.Context, fileID string) (models.ParsedDocumentSnapshot, error) {
	var (
		s      models.ParsedDocumentSnapshot
		issues []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
SELECT id::text, file_id, session_id, user_id, lab_report_id::text, structured_data, key_metrics, COALESCE(provider,''),
       COALESCE(model,''), attempt_number, validation_issues, truncated, text_length, created_at
FROM parsed_documents
WHERE file_id=$1
ORDER BY created_at DESC
LIMIT 1`, fileID).
		Scan(&s.ID, &s.FileID, &s.SessionID, &s.UserID, &s.LabReportID, &s.StructuredData, &s.KeyMetrics, &s.Provider,
			&s.Model, &s.AttemptNumber, &issues, &s.Truncated, &s.TextLength, &s.CreatedAt)
	if err != nil {
		return models.ParsedDocumentSnapshot{}, fmt.Errorf("latest parsed document: %w", err)
	}
	if err := json.Unmarshal(issues, &s.ValidationIssues); err != nil {
		return models.ParsedDocumentSnapshot{}, fmt.Errorf("decode validation issues: %w", err)
	}
	return s, nil
}
