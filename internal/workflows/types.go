package workflows

import "labflow/internal/activities"

const QueryGetSessionProgress = "GetSessionProgress"

type SessionProcessInput struct {
	SessionID         string   `json:"session_id"`
	FileIDs           []string `json:"file_ids"`
	PreferredProvider string   `json:"preferred_provider,omitempty"`
	MaxConcurrent     int      `json:"max_concurrent,omitempty"`
	MaxDurationMs     int64    `json:"max_duration_ms,omitempty"`
}

type SessionProcessProgress struct {
	SessionID string            `json:"session_id"`
	Total     int               `json:"total"`
	Admitted  int               `json:"admitted"`
	Done      int               `json:"done"`
	Failed    int               `json:"failed"`
	TimedOut  bool              `json:"timed_out"`
	PerFile   map[string]string `json:"per_file"`
}

type SessionProcessOutput struct {
	SessionID string                         `json:"session_id"`
	Results   []activities.ProcessFileOutput `json:"results"`
	TimedOut  bool                           `json:"timed_out"`
}

// WorkflowID is the stable id for a session's async run.
func WorkflowID(sessionID string) string {
	return "session-process-" + sessionID
}
