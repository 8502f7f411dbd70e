package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"labflow/internal/blob"
	"labflow/internal/models"
	"labflow/internal/persist"
	"labflow/internal/scheduler"
	"labflow/internal/status"
	"labflow/internal/util"
)

type FileSource interface {
	GetFile(ctx context.Context, fileID string) (models.FileJob, error)
}

// StatusReader lets the processor skip files whose record is already terminal.
type StatusReader interface {
	GetStatus(ctx context.Context, fileID, sessionID string) (*models.FileStatusRecord, error)
}

// FileResult is the per-file entry returned to API callers and workflows.
type FileResult struct {
	FileID         string                   `json:"fileId"`
	FileName       string                   `json:"fileName,omitempty"`
	Success        bool                     `json:"success"`
	Skipped        bool                     `json:"skipped,omitempty"`
	Provider       string                   `json:"provider,omitempty"`
	Model          string                   `json:"model,omitempty"`
	AttemptNumber  int                      `json:"attemptNumber,omitempty"`
	LabReportID    string                   `json:"labReportId,omitempty"`
	PatientID      string                   `json:"patientId,omitempty"`
	TestCount      int                      `json:"testCount,omitempty"`
	Validation     *models.ValidationResult `json:"validation,omitempty"`
	Degraded       bool                     `json:"degraded,omitempty"`
	Truncated      bool                     `json:"truncated,omitempty"`
	Error          string                   `json:"error,omitempty"`
	ErrorCode      string                   `json:"errorCode,omitempty"`
	IsRetryable    bool                     `json:"isRetryable,omitempty"`
	ProcessingTime int64                    `json:"processingTime"`
}

type Processor struct {
	files    FileSource
	statuses StatusReader
	blobs    blob.Store
	router   *Router
	writer   *persist.Writer
	sink     status.Sink
	logger   *slog.Logger
	now      func() time.Time
}

func NewProcessor(files FileSource, statuses StatusReader, blobs blob.Store, router *Router, writer *persist.Writer, sink status.Sink, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		files:    files,
		statuses: statuses,
		blobs:    blobs,
		router:   router,
		writer:   writer,
		sink:     sink,
		logger:   logger,
		now:      time.Now,
	}
}

// ProcessFile runs one file end to end and records a status at every step. It never
// returns an error; failures are written to the status record and the result.
func (p *Processor) ProcessFile(ctx context.Context, fileID, sessionID, preferred string, budget scheduler.Budget) FileResult {
	start := p.now()
	log := p.logger.With("file_id", fileID, "session_id", sessionID)
	rec := models.FileStatusRecord{FileID: fileID, SessionID: sessionID}
	res := FileResult{FileID: fileID}

	fail := func(err error) FileResult {
		elapsed := p.now().Sub(start).Milliseconds()
		res.Success = false
		res.Error = err.Error()
		res.ErrorCode = util.ErrorCode(err)
		res.IsRetryable = util.IsRetryable(err)
		res.ProcessingTime = elapsed

		r := rec
		r.Status = models.StatusFailed
		r.ErrorMessage = res.Error
		r.ErrorCode = res.ErrorCode
		r.IsRetryable = res.IsRetryable
		r.ProcessingDurationMs = elapsed
		p.sink.Update(ctx, r)
		log.Warn("file processing failed", "error_code", res.ErrorCode, "retryable", res.IsRetryable, "error", err)
		return res
	}
	set := func(st models.FileStatus) {
		r := rec
		r.Status = st
		p.sink.Update(ctx, r)
	}

	if budget.Exhausted() {
		return fail(fmt.Errorf("%w: %dms of %dms used before start", util.ErrTimeoutApproaching,
			budget.Elapsed().Milliseconds(), budget.Max.Milliseconds()))
	}

	if p.statuses != nil {
		if cur, err := p.statuses.GetStatus(ctx, fileID, sessionID); err != nil {
			log.Warn("read current status failed", "error", err)
		} else if cur != nil && cur.Status.Terminal() {
			res.Skipped = true
			res.FileName = cur.FileName
			res.Success = cur.Status == models.StatusCompleted
			res.Provider = cur.Provider
			res.Model = cur.Model
			res.Error = cur.ErrorMessage
			res.ErrorCode = cur.ErrorCode
			res.IsRetryable = cur.IsRetryable
			res.ProcessingTime = cur.ProcessingDurationMs
			log.Info("file already in terminal state, skipping", "status", cur.Status)
			return res
		}
	}

	job, err := p.files.GetFile(ctx, fileID)
	if err != nil {
		return fail(err)
	}
	if job.SessionID != sessionID {
		return fail(fmt.Errorf("file %s is not part of session %s: %w", fileID, sessionID, util.ErrFileNotFound))
	}
	rec.FileName, rec.FileType = job.FileName, job.FileType
	res.FileName = job.FileName

	set(models.StatusDownloading)
	data, err := p.blobs.Download(ctx, job.StorageLocator)
	if err != nil {
		return fail(err)
	}

	out, err := p.router.Run(ctx, job, data, preferred, func(s Stage) {
		r := rec
		r.Status = s.Status
		r.Provider = s.Provider
		r.Model = s.Model
		r.AttemptNumber = s.Attempt
		p.sink.Update(ctx, r)
	})
	if err != nil {
		return fail(err)
	}
	rec.Provider, rec.Model, rec.AttemptNumber = out.Provider, out.Model, out.ParseAttempts
	res.Provider, res.Model, res.AttemptNumber = out.Provider, out.Model, out.ParseAttempts
	res.Degraded = !out.Accepted
	res.Truncated = out.Parsed.Truncated
	v := out.Parsed.Validation
	res.Validation = &v

	set(models.StatusSaving)
	saved, err := p.writer.Save(ctx, job, persist.SaveInput{
		Report:        out.Parsed.Data,
		Provider:      out.Provider,
		Model:         out.Model,
		AttemptNumber: out.ParseAttempts,
		Validation:    out.Parsed.Validation,
		Truncated:     out.Parsed.Truncated,
		TextLength:    len([]rune(out.Document.Text)),
	})
	if err != nil {
		return fail(err)
	}
	res.LabReportID = saved.LabReport.ID
	res.TestCount = saved.TestCount
	if saved.Patient != nil {
		res.PatientID = saved.Patient.ID
	}

	res.Success = true
	res.ProcessingTime = p.now().Sub(start).Milliseconds()
	done := rec
	done.Status = models.StatusCompleted
	done.ProcessingDurationMs = res.ProcessingTime
	p.sink.Update(ctx, done)
	log.Info("file processed", "provider", out.Provider, "model", out.Model, "attempts", out.ParseAttempts,
		"tests", saved.TestCount, "degraded", res.Degraded, "duration_ms", res.ProcessingTime)
	return res
}

// MarkPending writes a pending record for each requested file so progress polling
// sees the whole batch before any job starts. Terminal records are left as they are.
func (p *Processor) MarkPending(ctx context.Context, sessionID string, fileIDs []string) {
	for _, id := range fileIDs {
		rec := models.FileStatusRecord{FileID: id, SessionID: sessionID, Status: models.StatusPending}
		if job, err := p.files.GetFile(ctx, id); err == nil {
			rec.FileName, rec.FileType = job.FileName, job.FileType
		}
		p.sink.Update(ctx, rec)
	}
}
