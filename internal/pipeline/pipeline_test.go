package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labflow/internal/blob"
	"labflow/internal/extraction"
	"labflow/internal/models"
	"labflow/internal/persist"
	"labflow/internal/pipeline"
	"labflow/internal/providers"
	"labflow/internal/scheduler"
	"labflow/internal/status"
	"labflow/internal/storage"
)

const reportText = `CENTRAL DIAGNOSTICS LABORATORY
Patient: Maria Gonzalez   Age: 45   Sex: F
Report date: 15/03/2024
COMPLETE BLOOD COUNT
Hemoglobin 10.5 g/dL (12.0 - 16.0)
WBC 7.2 10^3/uL (4.0 - 11.0)`

const validJSON = `{
  "patient_info": {"name": "Maria Gonzalez", "age": "45", "gender": "F"},
  "lab_details": {"lab_name": "Central Diagnostics Laboratory", "report_date": "15/03/2024"},
  "panels": [{"panel_name": "Complete Blood Count", "tests": [
    {"test_name": "Hemoglobin", "value": "10.5", "unit": "g/dL", "range_min": 12, "range_max": 16, "range_text": "12.0 - 16.0"},
    {"test_name": "WBC", "value": 7.2, "unit": "10^3/uL", "range_text": "4.0 - 11.0"}
  ]}]
}`

const placeholderJSON = `{
  "patient_info": {"name": "John Doe"},
  "lab_details": {"lab_name": "Central Diagnostics Laboratory"},
  "panels": [{"panel_name": "CBC", "tests": [{"test_name": "Hemoglobin", "value": "10.5", "unit": "g/dL", "range_min": 12, "range_max": 16}]}]
}`

var ladder = []string{"small", "medium", "large"}

type fixture struct {
	store   *storage.MemoryStore
	blobs   *blob.MemoryStore
	proc    *pipeline.Processor
	tracker *status.Tracker
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, integrations ...providers.Integration) *fixture {
	t.Helper()
	logger := quietLogger()
	store := storage.NewMemoryStore()
	blobs := blob.NewMemoryStore()
	tracker := status.NewTracker(store, logger)
	router := pipeline.NewRouter(providers.NewStaticManager(integrations...), pipeline.RouterOptions{
		Extraction: extraction.Options{MinChars: 20, WarnChars: 100},
		Logger:     logger,
	})
	writer := persist.NewWriter(store, store, store, logger)
	return &fixture{
		store:   store,
		blobs:   blobs,
		tracker: tracker,
		proc:    pipeline.NewProcessor(store, store, blobs, router, writer, tracker, logger),
	}
}

func (f *fixture) upload(t *testing.T, fileID, fileType string) {
	t.Helper()
	ctx := context.Background()
	locator := "u1/s1/" + fileID
	require.NoError(t, f.blobs.Upload(ctx, locator, []byte("%PDF-1.4 fake"), blob.UploadOptions{ContentType: fileType}))
	require.NoError(t, f.store.RegisterFile(ctx, models.FileJob{
		FileID: fileID, SessionID: "s1", UserID: "u1", FileName: fileID + ".pdf", FileType: fileType, StorageLocator: locator,
	}))
	f.tracker.Update(ctx, models.FileStatusRecord{FileID: fileID, SessionID: "s1", FileName: fileID + ".pdf", FileType: fileType, Status: models.StatusPending})
}

func integration(name string, extract, parse providers.Completer) providers.Integration {
	return providers.Integration{Name: name, Extract: extract, Parse: parse, ExtractModels: ladder, ParseModels: ladder}
}

func freshBudget() scheduler.Budget {
	return scheduler.NewBudget(time.Minute)
}

func TestOrder(t *testing.T) {
	both := providers.Availability{OpenAI: true, Anthropic: true}
	assert.Equal(t, []string{"openai", "anthropic"}, pipeline.Order("auto", both))
	assert.Equal(t, []string{"anthropic", "openai"}, pipeline.Order("Anthropic", both))
	assert.Equal(t, []string{"openai", "anthropic"}, pipeline.Order("mistral", both))
	assert.Equal(t, []string{"anthropic"}, pipeline.Order("openai", providers.Availability{Anthropic: true}))
	assert.Empty(t, pipeline.Order("auto", providers.Availability{}))
}

func TestProcessFile_HemoglobinLowEndToEnd(t *testing.T) {
	extract := providers.NewMockProvider("openai", providers.MockReply{Text: reportText})
	parse := providers.NewMockProvider("openai", providers.MockReply{Text: "```json\n" + validJSON + "\n```"})
	f := newFixture(t, integration("openai", extract, parse))
	f.upload(t, "f1", "application/pdf")

	res := f.proc.ProcessFile(context.Background(), "f1", "s1", "auto", freshBudget())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "openai", res.Provider)
	assert.Equal(t, "small", res.Model)
	assert.Equal(t, 1, res.AttemptNumber)
	assert.Equal(t, 2, res.TestCount)
	assert.False(t, res.Degraded)

	results, err := f.store.ListTestResults(context.Background(), res.LabReportID)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Hemoglobin", results[0].TestName)
	assert.Equal(t, models.TestLow, results[0].Status)
	assert.True(t, results[0].Flagged)
	assert.Equal(t, models.TestNormal, results[1].Status)

	rec, _ := f.store.GetStatus(context.Background(), "f1", "s1")
	require.NotNil(t, rec)
	assert.Equal(t, models.StatusCompleted, rec.Status)
	assert.Equal(t, 100, rec.Progress)
	assert.Equal(t, "openai", rec.Provider)
	assert.NotNil(t, rec.CompletedAt)

	require.Len(t, extract.Requests(), 1)
	req := extract.Requests()[0]
	assert.Equal(t, "extract_pdf", req.Operation)
	require.Len(t, req.Attachments, 1)
	assert.Equal(t, "application/pdf", req.Attachments[0].MIMEType)
}

func TestProcessFile_PlaceholderPatientDegradesAfterThreeAttempts(t *testing.T) {
	extract := providers.NewMockProvider("openai", providers.MockReply{Text: reportText})
	parse := providers.NewMockProvider("openai", providers.MockReply{Text: placeholderJSON})
	f := newFixture(t, integration("openai", extract, parse))
	f.upload(t, "f1", "application/pdf")

	res := f.proc.ProcessFile(context.Background(), "f1", "s1", "auto", freshBudget())
	require.True(t, res.Success, res.Error)
	assert.True(t, res.Degraded)
	assert.Equal(t, 3, res.AttemptNumber)
	assert.Equal(t, "large", res.Model)
	require.NotNil(t, res.Validation)
	assert.False(t, res.Validation.IsValid)

	assert.Equal(t, 3, parse.Calls())
	used := []string{}
	for _, r := range parse.Requests() {
		used = append(used, r.Model)
	}
	assert.Equal(t, ladder, used)

	snaps := f.store.Snapshots()
	require.Len(t, snaps, 1)
	assert.Equal(t, 3, snaps[0].AttemptNumber)
	assert.NotEmpty(t, snaps[0].ValidationIssues)
}

func TestProcessFile_FallsBackToAnthropic(t *testing.T) {
	down := &providers.HTTPError{Provider: "openai", Status: 503, Body: "unavailable"}
	openaiExtract := providers.NewMockProvider("openai", providers.MockReply{Err: down})
	openaiParse := providers.NewMockProvider("openai", providers.MockReply{Text: validJSON})
	claudeExtract := providers.NewMockProvider("anthropic", providers.MockReply{Text: reportText})
	claudeParse := providers.NewMockProvider("anthropic", providers.MockReply{Text: validJSON})
	f := newFixture(t,
		integration("openai", openaiExtract, openaiParse),
		integration("anthropic", claudeExtract, claudeParse),
	)
	f.upload(t, "f1", "image/png")

	res := f.proc.ProcessFile(context.Background(), "f1", "s1", "openai", freshBudget())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "anthropic", res.Provider)
	assert.Equal(t, 3, openaiExtract.Calls())
	assert.Equal(t, 0, openaiParse.Calls())
	assert.Equal(t, 1, claudeExtract.Calls())
	assert.Equal(t, "extract_image", claudeExtract.Requests()[0].Operation)
}

func TestProcessFile_AllProvidersDown(t *testing.T) {
	down := &providers.HTTPError{Provider: "openai", Status: 500, Body: "boom"}
	mock := providers.NewMockProvider("openai", providers.MockReply{Err: down})
	f := newFixture(t, integration("openai", mock, mock))
	f.upload(t, "f1", "application/pdf")

	res := f.proc.ProcessFile(context.Background(), "f1", "s1", "auto", freshBudget())
	assert.False(t, res.Success)
	assert.Equal(t, "PROVIDER_UNAVAILABLE", res.ErrorCode)
	assert.True(t, res.IsRetryable)

	rec, _ := f.store.GetStatus(context.Background(), "f1", "s1")
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.Equal(t, 30, rec.Progress)
	assert.Equal(t, 3, rec.AttemptNumber)
}

func TestProcessFile_UnsupportedTypeStopsWalk(t *testing.T) {
	a := providers.NewMockProvider("openai", providers.MockReply{Text: reportText})
	b := providers.NewMockProvider("anthropic", providers.MockReply{Text: reportText})
	f := newFixture(t, integration("openai", a, a), integration("anthropic", b, b))
	f.upload(t, "f1", "text/plain")

	res := f.proc.ProcessFile(context.Background(), "f1", "s1", "auto", freshBudget())
	assert.False(t, res.Success)
	assert.Equal(t, "UNSUPPORTED_FILE_TYPE", res.ErrorCode)
	assert.False(t, res.IsRetryable)
	assert.Zero(t, a.Calls())
	assert.Zero(t, b.Calls())
}

func TestProcessFile_ExhaustedBudget(t *testing.T) {
	mock := providers.NewMockProvider("openai", providers.MockReply{Text: reportText})
	f := newFixture(t, integration("openai", mock, mock))
	f.upload(t, "f1", "application/pdf")

	budget := scheduler.Budget{Start: time.Now().Add(-time.Minute), Max: time.Minute}
	res := f.proc.ProcessFile(context.Background(), "f1", "s1", "auto", budget)
	assert.False(t, res.Success)
	assert.Equal(t, "TIMEOUT_APPROACHING", res.ErrorCode)
	assert.False(t, res.IsRetryable)
	assert.Zero(t, mock.Calls())

	rec, _ := f.store.GetStatus(context.Background(), "f1", "s1")
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.False(t, rec.IsRetryable)
}

func TestProcessFile_UnknownAndForeignFiles(t *testing.T) {
	mock := providers.NewMockProvider("openai", providers.MockReply{Text: reportText})
	f := newFixture(t, integration("openai", mock, mock))
	f.upload(t, "f1", "application/pdf")

	res := f.proc.ProcessFile(context.Background(), "missing", "s1", "auto", freshBudget())
	assert.Equal(t, "FILE_NOT_FOUND", res.ErrorCode)

	res = f.proc.ProcessFile(context.Background(), "f1", "other-session", "auto", freshBudget())
	assert.Equal(t, "FILE_NOT_FOUND", res.ErrorCode)
	assert.Zero(t, mock.Calls())
}

func TestProcessFile_SkipsTerminalFiles(t *testing.T) {
	extract := providers.NewMockProvider("openai", providers.MockReply{Text: reportText})
	parse := providers.NewMockProvider("openai", providers.MockReply{Text: validJSON})
	f := newFixture(t, integration("openai", extract, parse))
	f.upload(t, "f1", "application/pdf")

	first := f.proc.ProcessFile(context.Background(), "f1", "s1", "auto", freshBudget())
	require.True(t, first.Success)
	second := f.proc.ProcessFile(context.Background(), "f1", "s1", "auto", freshBudget())
	assert.True(t, second.Skipped)
	assert.True(t, second.Success)
	assert.Equal(t, 1, extract.Calls())
	assert.Len(t, f.store.Reports(), 1)
}

func TestProcessFile_ShortExtractionEscalates(t *testing.T) {
	extract := providers.NewMockProvider("openai",
		providers.MockReply{Text: "blurry"},
		providers.MockReply{Text: reportText},
	)
	parse := providers.NewMockProvider("openai", providers.MockReply{Text: validJSON})
	f := newFixture(t, integration("openai", extract, parse))
	f.upload(t, "f1", "image/jpeg")

	res := f.proc.ProcessFile(context.Background(), "f1", "s1", "auto", freshBudget())
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 2, extract.Calls())
	assert.Equal(t, "medium", extract.Requests()[1].Model)
}

func TestSchedulerWithProcessor(t *testing.T) {
	extract := providers.NewMockProvider("openai", providers.MockReply{Text: reportText})
	parse := providers.NewMockProvider("openai", providers.MockReply{Text: validJSON})
	f := newFixture(t, integration("openai", extract, parse))
	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		f.upload(t, id, "application/pdf")
	}

	out := scheduler.Run(context.Background(), ids, scheduler.Options{MaxConcurrent: 2, MaxDuration: time.Minute},
		func(ctx context.Context, id string, b scheduler.Budget) pipeline.FileResult {
			return f.proc.ProcessFile(ctx, id, "s1", "auto", b)
		})
	require.Len(t, out.Results, 5)
	for _, r := range out.Results {
		assert.True(t, r.Success, r.Error)
	}

	p, err := f.tracker.Progress(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "completed", p.Summary.SessionStatus)
	assert.Equal(t, 100, p.Summary.OverallProgress)
	assert.Equal(t, 5, p.Summary.CompletedFiles)
	assert.True(t, strings.HasPrefix(p.Files[0].FileName, "a"))
}
