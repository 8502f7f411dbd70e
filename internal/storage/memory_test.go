package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labflow/internal/models"
	"labflow/internal/util"
)

func TestMemoryStore_GetFileMissing(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.GetFile(context.Background(), "nope")
	require.ErrorIs(t, err, util.ErrFileNotFound)
}

func TestMemoryStore_ListSessionFilesKeepsUploadOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	for _, id := range []string{"f2", "f1", "f3"} {
		require.NoError(t, m.RegisterFile(ctx, models.FileJob{FileID: id, SessionID: "s1"}))
	}
	require.NoError(t, m.RegisterFile(ctx, models.FileJob{FileID: "other", SessionID: "s2"}))
	require.Error(t, m.RegisterFile(ctx, models.FileJob{FileID: "f1", SessionID: "s1"}))

	files, err := m.ListSessionFiles(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "f2", files[0].FileID)
	assert.Equal(t, "f3", files[2].FileID)
}

func TestMemoryStore_TerminalStatusIsFinal(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	applied, err := m.UpsertStatus(ctx, models.FileStatusRecord{FileID: "f1", SessionID: "s1", Status: models.StatusParsing, Progress: 60})
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = m.UpsertStatus(ctx, models.FileStatusRecord{FileID: "f1", SessionID: "s1", Status: models.StatusCompleted, Progress: 100})
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = m.UpsertStatus(ctx, models.FileStatusRecord{FileID: "f1", SessionID: "s1", Status: models.StatusFailed, ErrorMessage: "late"})
	require.NoError(t, err)
	assert.False(t, applied)

	rec, err := m.GetStatus(ctx, "f1", "s1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Empty(t, rec.ErrorMessage)
}

func TestMemoryStore_ResetOnlyFailed(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	_, _ = m.UpsertStatus(ctx, models.FileStatusRecord{FileID: "ok", SessionID: "s", Status: models.StatusCompleted, Progress: 100})
	_, _ = m.UpsertStatus(ctx, models.FileStatusRecord{FileID: "bad", SessionID: "s", FileName: "x.pdf", Status: models.StatusFailed, Progress: 30, ErrorCode: "PROVIDER_UNAVAILABLE", IsRetryable: true})

	ok, err := m.ResetStatus(ctx, "ok", "s")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.ResetStatus(ctx, "bad", "s")
	require.NoError(t, err)
	assert.True(t, ok)

	rec, _ := m.GetStatus(ctx, "bad", "s")
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusPending, rec.Status)
	assert.Equal(t, 0, rec.Progress)
	assert.Empty(t, rec.ErrorCode)
	assert.Equal(t, "x.pdf", rec.FileName)

	ok, err = m.ResetStatus(ctx, "missing", "s")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_CreatePatientConcurrentSameName(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := m.CreatePatient(ctx, models.Patient{UserID: "u1", Name: "Jane Roe"})
			assert.NoError(t, err)
			ids[i] = p.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Len(t, m.Patients(), 1)

	found, err := m.FindPatient(ctx, "u1", "Jane Roe")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, ids[0], found.ID)

	missing, err := m.FindPatient(ctx, "u2", "Jane Roe")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_ReportsAndResults(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	rep, err := m.InsertLabReport(ctx, models.LabReport{UserID: "u1", FileID: "f1", SessionID: "s1", LabName: "Central Lab"})
	require.NoError(t, err)
	require.NotEmpty(t, rep.ID)

	require.NoError(t, m.InsertTestResult(ctx, models.TestResult{LabReportID: rep.ID, TestName: "Hemoglobin", Value: "10.5", Status: models.TestLow, Flagged: true}))
	require.NoError(t, m.InsertTestResult(ctx, models.TestResult{LabReportID: "other", TestName: "WBC", Value: "7", Status: models.TestNormal}))

	results, err := m.ListTestResults(ctx, rep.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Hemoglobin", results[0].TestName)

	reports, err := m.ListReportsByFile(ctx, "f1")
	require.NoError(t, err)
	assert.Len(t, reports, 1)
}

func TestMemoryStore_RefreshSessionSummary(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	s, err := m.RefreshSessionSummary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "pending", s.SessionStatus)

	_, err = m.UpsertStatus(ctx, models.FileStatusRecord{FileID: "a", SessionID: "s1", Status: models.StatusCompleted, Progress: 100})
	require.NoError(t, err)
	_, err = m.UpsertStatus(ctx, models.FileStatusRecord{FileID: "b", SessionID: "s1", Status: models.StatusExtracting, Progress: 30})
	require.NoError(t, err)
	_, err = m.UpsertStatus(ctx, models.FileStatusRecord{FileID: "c", SessionID: "s2", Status: models.StatusFailed})
	require.NoError(t, err)

	s, err = m.RefreshSessionSummary(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalFiles)
	assert.Equal(t, 1, s.ProcessingFiles)
	assert.Equal(t, 65, s.OverallProgress)
	assert.Equal(t, "processing", s.SessionStatus)
	assert.False(t, s.UpdatedAt.IsZero())

	stored, err := m.GetSessionSummary(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, s, *stored)
}
