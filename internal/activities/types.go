package activities

import "labflow/internal/pipeline"

type MarkPendingInput struct {
	SessionID string   `json:"session_id"`
	FileIDs   []string `json:"file_ids"`
}

// ProcessFileInput carries the session budget so a job admitted late can still
// refuse to start.
type ProcessFileInput struct {
	FileID            string `json:"file_id"`
	SessionID         string `json:"session_id"`
	PreferredProvider string `json:"preferred_provider,omitempty"`
	BudgetStartUnixMs int64  `json:"budget_start_unix_ms"`
	BudgetMaxMs       int64  `json:"budget_max_ms"`
}

type ProcessFileOutput = pipeline.FileResult
