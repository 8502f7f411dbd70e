package models

import (
	"encoding/json"
	"time"
)

// FileJob is one uploaded file waiting to be processed. The pipeline never mutates it.
type FileJob struct {
	FileID         string    `json:"file_id"`
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	FileName       string    `json:"file_name"`
	FileType       string    `json:"file_type"`
	StorageLocator string    `json:"storage_locator"`
	SizeBytes      int64     `json:"size_bytes"`
	ContentHash    string    `json:"content_hash,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type FileStatus string

const (
	StatusPending     FileStatus = "pending"
	StatusDownloading FileStatus = "downloading"
	StatusExtracting  FileStatus = "extracting"
	StatusParsing     FileStatus = "parsing"
	StatusSaving      FileStatus = "saving"
	StatusCompleted   FileStatus = "completed"
	StatusFailed      FileStatus = "failed"
)

// Progress is the advisory UI percentage for a state. Failed keeps whatever was reached.
func (s FileStatus) Progress() int {
	switch s {
	case StatusDownloading:
		return 10
	case StatusExtracting:
		return 30
	case StatusParsing:
		return 60
	case StatusSaving:
		return 90
	case StatusCompleted:
		return 100
	default:
		return 0
	}
}

func (s FileStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// FileStatusRecord is keyed by (FileID, SessionID).
type FileStatusRecord struct {
	FileID               string     `json:"file_id"`
	SessionID            string     `json:"session_id"`
	FileName             string     `json:"file_name,omitempty"`
	FileType             string     `json:"file_type,omitempty"`
	Status               FileStatus `json:"status"`
	Progress             int        `json:"progress"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	ErrorCode            string     `json:"error_code,omitempty"`
	IsRetryable          bool       `json:"is_retryable"`
	AttemptNumber        int        `json:"attempt_number"`
	Provider             string     `json:"provider,omitempty"`
	Model                string     `json:"model,omitempty"`
	ProcessingDurationMs int64      `json:"processing_duration_ms"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	CompletedAt          *time.Time `json:"completed_at,omitempty"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

type SessionSummary struct {
	SessionID       string    `json:"session_id"`
	TotalFiles      int       `json:"total_files"`
	CompletedFiles  int       `json:"completed_files"`
	FailedFiles     int       `json:"failed_files"`
	ProcessingFiles int       `json:"processing_files"`
	PendingFiles    int       `json:"pending_files"`
	OverallProgress int       `json:"overall_progress"`
	SessionStatus   string    `json:"session_status"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// ExtractedDocument lives only for the duration of one pipeline run.
type ExtractedDocument struct {
	Text       string `json:"text"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	PageCount  int    `json:"page_count,omitempty"`
	LowContent bool   `json:"low_content"`
}

const (
	TestNormal   = "NORMAL"
	TestHigh     = "HIGH"
	TestLow      = "LOW"
	TestCritical = "CRITICAL"
	TestPending  = "PENDING"
	TestAbnormal = "ABNORMAL"
)

type ParsedMedicalReport struct {
	Patient    PatientInfo `json:"patient_info"`
	LabDetails LabDetails  `json:"lab_details"`
	Panels     []TestPanel `json:"panels"`
}

type PatientInfo struct {
	Name    string `json:"name"`
	Age     string `json:"age,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Contact string `json:"contact,omitempty"`
	Address string `json:"address,omitempty"`
}

type LabDetails struct {
	LabName    string `json:"lab_name"`
	Doctor     string `json:"doctor,omitempty"`
	ReportID   string `json:"report_id,omitempty"`
	ReportDate string `json:"report_date,omitempty"`
	TestDate   string `json:"test_date,omitempty"`
}

type TestPanel struct {
	PanelName string    `json:"panel_name"`
	Tests     []LabTest `json:"tests"`
}

type LabTest struct {
	TestName  string     `json:"test_name"`
	Value     FlexString `json:"value"`
	Unit      string     `json:"unit,omitempty"`
	RangeMin  FlexFloat  `json:"range_min"`
	RangeMax  FlexFloat  `json:"range_max"`
	RangeText string     `json:"range_text,omitempty"`
	Status    string     `json:"status,omitempty"`
	Category  string     `json:"category,omitempty"`
}

// TestCount is the number of test entries across all panels.
func (r ParsedMedicalReport) TestCount() int {
	n := 0
	for _, p := range r.Panels {
		n += len(p.Tests)
	}
	return n
}

type ValidationResult struct {
	IsValid bool     `json:"isValid"`
	Issues  []string `json:"issues"`
}

type Patient struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Age       string    `json:"age,omitempty"`
	Gender    string    `json:"gender,omitempty"`
	Contact   string    `json:"contact,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type LabReport struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	PatientID  *string    `json:"patient_id,omitempty"`
	SessionID  string     `json:"session_id"`
	FileID     string     `json:"file_id"`
	LabName    string     `json:"lab_name"`
	Doctor     string     `json:"doctor,omitempty"`
	ReportID   string     `json:"report_id,omitempty"`
	ReportDate *time.Time `json:"report_date,omitempty"`
	TestDate   *time.Time `json:"test_date,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

type TestResult struct {
	ID          string   `json:"id"`
	LabReportID string   `json:"lab_report_id"`
	PanelName   string   `json:"panel_name"`
	TestName    string   `json:"test_name"`
	Value       string   `json:"value"`
	Unit        string   `json:"unit,omitempty"`
	RangeMin    *float64 `json:"range_min,omitempty"`
	RangeMax    *float64 `json:"range_max,omitempty"`
	RangeText   string   `json:"range_text,omitempty"`
	Status      string   `json:"status"`
	Category    string   `json:"category,omitempty"`
	Flagged     bool     `json:"flagged"`
}

// KeyMetric is the flattened per-test view used for trend charts and report synthesis.
type KeyMetric struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Unit     string `json:"unit,omitempty"`
	Status   string `json:"status"`
	Panel    string `json:"panel,omitempty"`
	Category string `json:"category,omitempty"`
}

type ParsedDocumentSnapshot struct {
	ID               string          `json:"id"`
	FileID           string          `json:"file_id"`
	SessionID        string          `json:"session_id"`
	UserID           string          `json:"user_id"`
	LabReportID      *string         `json:"lab_report_id,omitempty"`
	StructuredData   json.RawMessage `json:"structured_data"`
	KeyMetrics       json.RawMessage `json:"key_metrics"`
	Provider         string          `json:"provider"`
	Model            string          `json:"model"`
	AttemptNumber    int             `json:"attempt_number"`
	ValidationIssues []string        `json:"validation_issues"`
	Truncated        bool            `json:"truncated"`
	TextLength       int             `json:"text_length"`
	CreatedAt        time.Time       `json:"created_at"`
}

// LLMCall is one audited provider round trip.
type LLMCall struct {
	CallID     string    `json:"call_id"`
	Operation  string    `json:"operation"`
	FileID     string    `json:"file_id,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Status     string    `json:"status"`
	ErrorType  string    `json:"error_type,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}
