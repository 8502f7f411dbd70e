package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"labflow/internal/models"
	"labflow/internal/util"
)

type FileRepo struct {
	db *DB
}

func NewFileRepo(db *DB) *FileRepo {
	return &FileRepo{db: db}
}

func (r *FileRepo) RegisterFile(ctx context.Context, f models.FileJob) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO uploaded_files (file_id, session_id, user_id, file_name, file_type, storage_locator, size_bytes, content_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8,''))`,
		f.FileID, f.SessionID, f.UserID, f.FileName, f.FileType, f.StorageLocator, f.SizeBytes, f.ContentHash)
	if err != nil {
		return fmt.Errorf("insert uploaded file: %w", err)
	}
	return nil
}

const fileColumns = `file_id, session_id, user_id, file_name, file_type, storage_locator, size_bytes, COALESCE(content_hash,''), created_at`

func scanFile(row pgx.Row) (models.FileJob, error) {
	var f models.FileJob
	err := row.Scan(&f.FileID, &f.SessionID, &f.UserID, &f.FileName, &f.FileType, &f.StorageLocator, &f.SizeBytes, &f.ContentHash, &f.CreatedAt)
	return f, err
}

func (r *FileRepo) GetFile(ctx context.Context, fileID string) (models.FileJob, error) {
	f, err := scanFile(r.db.Pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM uploaded_files WHERE file_id=$1`, fileID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.FileJob{}, fmt.Errorf("get file %s: %w", fileID, util.ErrFileNotFound)
	}
	if err != nil {
		return models.FileJob{}, fmt.Errorf("get file: %w", err)
	}
	return f, nil
}

func (r *FileRepo) ListSessionFiles(ctx context.Context, sessionID string) ([]models.FileJob, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+fileColumns+` FROM uploaded_files WHERE session_id=$1 ORDER BY created_at, file_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session files: %w", err)
	}
	defer rows.Close()

	out := make([]models.FileJob, 0)
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan uploaded file: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate uploaded files: %w", err)
	}
	return out, nil
}
