// Package status tracks per-file pipeline state and derives session progress from it.
package status

import (
	"context"
	"log/slog"
	"time"

	"labflow/internal/models"
)

// Sink receives status transitions. Implementations never fail the caller.
type Sink interface {
	Update(ctx context.Context, rec models.FileStatusRecord)
}

// Store persists status records. UpsertStatus must apply Merge semantics atomically
// and report whether the write was applied. RefreshSessionSummary must derive the
// stored summary from the records it holds in one atomic step.
type Store interface {
	UpsertStatus(ctx context.Context, rec models.FileStatusRecord) (bool, error)
	ResetStatus(ctx context.Context, fileID, sessionID string) (bool, error)
	ListSessionStatuses(ctx context.Context, sessionID string) ([]models.FileStatusRecord, error)
	RefreshSessionSummary(ctx context.Context, sessionID string) (models.SessionSummary, error)
	GetSessionSummary(ctx context.Context, sessionID string) (*models.SessionSummary, error)
}

type Tracker struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewTracker(store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, logger: logger, now: time.Now}
}

// Update writes rec and refreshes the session summary. Failures are logged and dropped.
func (t *Tracker) Update(ctx context.Context, rec models.FileStatusRecord) {
	ctx = context.WithoutCancel(ctx)
	now := t.now().UTC()
	rec.UpdatedAt = now
	if p := rec.Status.Progress(); p > rec.Progress {
		rec.Progress = p
	}
	if rec.Status == models.StatusDownloading && rec.StartedAt == nil {
		rec.StartedAt = &now
	}
	if rec.Status.Terminal() && rec.CompletedAt == nil {
		rec.CompletedAt = &now
	}

	log := t.logger.With("file_id", rec.FileID, "session_id", rec.SessionID, "status", rec.Status)
	applied, err := t.store.UpsertStatus(ctx, rec)
	if err != nil {
		log.Warn("status write failed", "error", err)
		return
	}
	if !applied {
		log.Debug("status write skipped, record already terminal")
		return
	}
	t.refreshSummary(ctx, rec.SessionID)
}

// Reset moves a failed, retryable record back to pending so the file can be scheduled again.
// It reports false when there was nothing to reset.
func (t *Tracker) Reset(ctx context.Context, fileID, sessionID string) (bool, error) {
	ok, err := t.store.ResetStatus(ctx, fileID, sessionID)
	if err != nil || !ok {
		return ok, err
	}
	t.refreshSummary(ctx, sessionID)
	return true, nil
}

func (t *Tracker) refreshSummary(ctx context.Context, sessionID string) {
	if _, err := t.store.RefreshSessionSummary(ctx, sessionID); err != nil {
		t.logger.Warn("session summary write failed", "session_id", sessionID, "error", err)
	}
}

// Progress is the polling view for one session. The stored summary row is preferred;
// when it is missing or its counts disagree with the records just read, the summary
// is computed from the records.
func (t *Tracker) Progress(ctx context.Context, sessionID string) (SessionProgress, error) {
	recs, err := t.store.ListSessionStatuses(ctx, sessionID)
	if err != nil {
		return SessionProgress{}, err
	}
	summary, err := t.store.GetSessionSummary(ctx, sessionID)
	if err != nil {
		t.logger.Warn("read session summary failed, computing from records", "session_id", sessionID, "error", err)
		summary = nil
	}
	computed := Summarize(sessionID, recs)
	if summary == nil || !sameCounts(*summary, computed) {
		computed.UpdatedAt = t.now().UTC()
		summary = &computed
	}
	files := make([]FileProgress, 0, len(recs))
	for _, r := range recs {
		files = append(files, FileProgress{
			FileID:         r.FileID,
			FileName:       r.FileName,
			FileType:       r.FileType,
			Status:         r.Status,
			Progress:       r.Progress,
			Error:          r.ErrorMessage,
			ErrorCode:      r.ErrorCode,
			ProcessingTime: r.ProcessingDurationMs,
			AttemptNumber:  r.AttemptNumber,
			IsRetryable:    r.IsRetryable,
			Provider:       r.Provider,
		})
	}
	return SessionProgress{
		SessionID: sessionID,
		Summary:   *summary,
		Files:     files,
		Timestamp: t.now().UTC(),
	}, nil
}

func sameCounts(a, b models.SessionSummary) bool {
	return a.TotalFiles == b.TotalFiles &&
		a.CompletedFiles == b.CompletedFiles &&
		a.FailedFiles == b.FailedFiles &&
		a.ProcessingFiles == b.ProcessingFiles &&
		a.PendingFiles == b.PendingFiles &&
		a.OverallProgress == b.OverallProgress &&
		a.SessionStatus == b.SessionStatus
}

type FileProgress struct {
	FileID         string            `json:"fileId"`
	FileName       string            `json:"fileName"`
	FileType       string            `json:"fileType"`
	Status         models.FileStatus `json:"status"`
	Progress       int               `json:"progress"`
	Error          string            `json:"error,omitempty"`
	ErrorCode      string            `json:"errorCode,omitempty"`
	ProcessingTime int64             `json:"processingTime"`
	AttemptNumber  int               `json:"attemptNumber"`
	IsRetryable    bool              `json:"isRetryable"`
	Provider       string            `json:"provider,omitempty"`
}

type SessionProgress struct {
	SessionID string                `json:"sessionId"`
	Summary   models.SessionSummary `json:"summary"`
	Files     []FileProgress        `json:"files"`
	Timestamp time.Time             `json:"timestamp"`
}
