package storage

import (
	"context"
	"fmt"

	"labflow/internal/models"
)

type LLMAuditRepo struct {
	db *DB
}

func NewLLMAuditRepo(db *DB) *LLMAuditRepo {
	return &LLMAuditRepo{db: db}
}

func (r *LLMAuditRepo) Insert(ctx context.Context, rec models.LLMCall) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO llm_calls(call_id, operation, file_id, session_id, provider, model, status, error_type, error, duration_ms, created_at)
VALUES (COALESCE(NULLIF($1,'')::uuid, gen_random_uuid()), $2, NULLIF($3,''), NULLIF($4,''), $5, NULLIF($6,''), $7, NULLIF($8,''), NULLIF($9,''), $10, $11)`,
		rec.CallID, rec.Operation, rec.FileID, rec.SessionID, rec.Provider, rec.Model, rec.Status, rec.ErrorType, rec.Error, rec.DurationMs, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert llm call: %w", err)
	}
	return nil
}
