package status

import (
	"math"

	"labflow/internal/models"
)

// Merge folds an incoming write into the stored record. Terminal records are left
// alone, progress never goes down, and blank incoming fields keep the stored value.
func Merge(existing *models.FileStatusRecord, in models.FileStatusRecord) (models.FileStatusRecord, bool) {
	if existing == nil {
		return in, true
	}
	if existing.Status.Terminal() {
		return *existing, false
	}
	out := in
	if existing.Progress > out.Progress {
		out.Progress = existing.Progress
	}
	if out.FileName == "" {
		out.FileName = existing.FileName
	}
	if out.FileType == "" {
		out.FileType = existing.FileType
	}
	if out.AttemptNumber == 0 {
		out.AttemptNumber = existing.AttemptNumber
	}
	if out.Provider == "" {
		out.Provider = existing.Provider
	}
	if out.Model == "" {
		out.Model = existing.Model
	}
	if out.StartedAt == nil {
		out.StartedAt = existing.StartedAt
	}
	if out.ProcessingDurationMs == 0 {
		out.ProcessingDurationMs = existing.ProcessingDurationMs
	}
	return out, true
}

// ResetRecord is the pending state a retry starts from.
func ResetRecord(existing models.FileStatusRecord) models.FileStatusRecord {
	return models.FileStatusRecord{
		FileID:    existing.FileID,
		SessionID: existing.SessionID,
		FileName:  existing.FileName,
		FileType:  existing.FileType,
		Status:    models.StatusPending,
		UpdatedAt: existing.UpdatedAt,
	}
}

// Summarize derives session aggregates. Terminal files count as fully progressed.
func Summarize(sessionID string, recs []models.FileStatusRecord) models.SessionSummary {
	s := models.SessionSummary{SessionID: sessionID, TotalFiles: len(recs)}
	if len(recs) == 0 {
		s.SessionStatus = "pending"
		return s
	}
	total := 0
	for _, r := range recs {
		switch r.Status {
		case models.StatusCompleted:
			s.CompletedFiles++
			total += 100
		case models.StatusFailed:
			s.FailedFiles++
			total += 100
		case models.StatusPending, "":
			s.PendingFiles++
			total += r.Progress
		default:
			s.ProcessingFiles++
			total += r.Progress
		}
	}
	s.OverallProgress = int(math.Round(float64(total) / float64(len(recs))))

	switch {
	case s.FailedFiles == s.TotalFiles:
		s.SessionStatus = "failed"
	case s.CompletedFiles+s.FailedFiles == s.TotalFiles:
		s.SessionStatus = "completed"
	case s.PendingFiles == s.TotalFiles:
		s.SessionStatus = "pending"
	default:
		s.SessionStatus = "processing"
	}
	return s
}
