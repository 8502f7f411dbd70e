package status_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labflow/internal/models"
	"labflow/internal/status"
	"labflow/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTracker_UpdateStampsTimesAndProgress(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	tr := status.NewTracker(store, quietLogger())

	tr.Update(ctx, models.FileStatusRecord{FileID: "f1", SessionID: "s1", FileName: "cbc.pdf", Status: models.StatusPending})
	tr.Update(ctx, models.FileStatusRecord{FileID: "f1", SessionID: "s1", Status: models.StatusDownloading})

	rec, err := store.GetStatus(ctx, "f1", "s1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 10, rec.Progress)
	assert.NotNil(t, rec.StartedAt)
	assert.Nil(t, rec.CompletedAt)
	assert.Equal(t, "cbc.pdf", rec.FileName)

	tr.Update(ctx, models.FileStatusRecord{FileID: "f1", SessionID: "s1", Status: models.StatusCompleted})
	rec, _ = store.GetStatus(ctx, "f1", "s1")
	assert.Equal(t, 100, rec.Progress)
	assert.NotNil(t, rec.CompletedAt)
}

func TestTracker_FailedAfterCompletedIsIgnored(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	tr := status.NewTracker(store, quietLogger())

	tr.Update(ctx, models.FileStatusRecord{FileID: "f1", SessionID: "s1", Status: models.StatusCompleted})
	tr.Update(ctx, models.FileStatusRecord{FileID: "f1", SessionID: "s1", Status: models.StatusFailed, ErrorMessage: "late failure"})

	rec, _ := store.GetStatus(ctx, "f1", "s1")
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Empty(t, rec.ErrorMessage)
}

func TestTracker_UpdateSurvivesCancelledContext(t *testing.T) {
	store := storage.NewMemoryStore()
	tr := status.NewTracker(store, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr.Update(ctx, models.FileStatusRecord{FileID: "f1", SessionID: "s1", Status: models.StatusFailed})
	rec, _ := store.GetStatus(context.Background(), "f1", "s1")
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusFailed, rec.Status)
}

type failingStore struct {
	*storage.MemoryStore
}

func (failingStore) UpsertStatus(context.Context, models.FileStatusRecord) (bool, error) {
	return false, errors.New("connection refused")
}

func TestTracker_WriteErrorsAreSwallowed(t *testing.T) {
	tr := status.NewTracker(failingStore{storage.NewMemoryStore()}, quietLogger())
	assert.NotPanics(t, func() {
		tr.Update(context.Background(), models.FileStatusRecord{FileID: "f1", SessionID: "s1", Status: models.StatusParsing})
	})
}

func TestTracker_ProgressUsesStoredSummary(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	tr := status.NewTracker(store, quietLogger())

	tr.Update(ctx, models.FileStatusRecord{FileID: "a", SessionID: "s1", FileName: "a.pdf", Status: models.StatusCompleted, Provider: "openai"})
	tr.Update(ctx, models.FileStatusRecord{FileID: "b", SessionID: "s1", FileName: "b.png", Status: models.StatusParsing})

	p, err := tr.Progress(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", p.SessionID)
	require.Len(t, p.Files, 2)
	assert.Equal(t, "a", p.Files[0].FileID)
	assert.Equal(t, "openai", p.Files[0].Provider)
	assert.Equal(t, 2, p.Summary.TotalFiles)
	assert.Equal(t, 1, p.Summary.CompletedFiles)
	assert.Equal(t, 80, p.Summary.OverallProgress)
	assert.Equal(t, "processing", p.Summary.SessionStatus)
}

func TestTracker_ProgressWithoutSummaryRow(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	_, err := store.UpsertStatus(ctx, models.FileStatusRecord{FileID: "a", SessionID: "s1", Status: models.StatusFailed, Progress: 30})
	require.NoError(t, err)

	p, err := status.NewTracker(store, quietLogger()).Progress(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "failed", p.Summary.SessionStatus)
	assert.Equal(t, 1, p.Summary.FailedFiles)
}

func TestTracker_ResetFailedFile(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	tr := status.NewTracker(store, quietLogger())

	tr.Update(ctx, models.FileStatusRecord{FileID: "a", SessionID: "s1", Status: models.StatusFailed, ErrorCode: "PROVIDER_UNAVAILABLE", IsRetryable: true})
	ok, err := tr.Reset(ctx, "a", "s1")
	require.NoError(t, err)
	assert.True(t, ok)

	p, err := tr.Progress(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "pending", p.Summary.SessionStatus)
	assert.Equal(t, models.StatusPending, p.Files[0].Status)

	ok, err = tr.Reset(ctx, "a", "s1")
	require.NoError(t, err)
	assert.False(t, ok)
}

// gatedStore holds the first summary refresh until release is closed.
type gatedStore struct {
	*storage.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) RefreshSessionSummary(ctx context.Context, sessionID string) (models.SessionSummary, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.MemoryStore.RefreshSessionSummary(ctx, sessionID)
}

func TestTracker_InterleavedCompletionsLeaveSummaryCompleted(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{MemoryStore: storage.NewMemoryStore(), entered: make(chan struct{}), release: make(chan struct{})}
	tr := status.NewTracker(store, quietLogger())
	for _, id := range []string{"a", "b"} {
		_, err := store.UpsertStatus(ctx, models.FileStatusRecord{FileID: id, SessionID: "s1", Status: models.StatusParsing, Progress: 60})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tr.Update(ctx, models.FileStatusRecord{FileID: "a", SessionID: "s1", Status: models.StatusCompleted})
	}()
	<-store.entered
	tr.Update(ctx, models.FileStatusRecord{FileID: "b", SessionID: "s1", Status: models.StatusCompleted})
	close(store.release)
	wg.Wait()

	stored, err := store.GetSessionSummary(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "completed", stored.SessionStatus)
	assert.Equal(t, 2, stored.CompletedFiles)
	assert.Equal(t, 0, stored.ProcessingFiles)
	assert.Equal(t, 100, stored.OverallProgress)

	p, err := tr.Progress(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "completed", p.Summary.SessionStatus)
}

// staleSummaryStore always returns a summary row that predates the records.
type staleSummaryStore struct {
	*storage.MemoryStore
}

func (staleSummaryStore) GetSessionSummary(_ context.Context, sessionID string) (*models.SessionSummary, error) {
	return &models.SessionSummary{SessionID: sessionID, TotalFiles: 2, CompletedFiles: 1, ProcessingFiles: 1, OverallProgress: 80, SessionStatus: "processing"}, nil
}

func TestTracker_ProgressIgnoresStaleSummaryRow(t *testing.T) {
	ctx := context.Background()
	store := staleSummaryStore{storage.NewMemoryStore()}
	tr := status.NewTracker(store, quietLogger())
	tr.Update(ctx, models.FileStatusRecord{FileID: "a", SessionID: "s1", Status: models.StatusCompleted})
	tr.Update(ctx, models.FileStatusRecord{FileID: "b", SessionID: "s1", Status: models.StatusCompleted})

	p, err := tr.Progress(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "completed", p.Summary.SessionStatus)
	assert.Equal(t, 2, p.Summary.CompletedFiles)
	assert.Equal(t, 100, p.Summary.OverallProgress)
}
