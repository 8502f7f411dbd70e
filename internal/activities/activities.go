package activities

import (
	"context"
	"time"

	"go.temporal.io/sdk/activity"

	"labflow/internal/pipeline"
	"labflow/internal/scheduler"
)

const (
	MarkPendingActivityName = "MarkPendingActivity"
	ProcessFileActivityName = "ProcessFileActivity"
)

type Activities struct {
	processor *pipeline.Processor
}

func New(processor *pipeline.Processor) *Activities {
	return &Activities{processor: processor}
}

func (a *Activities) MarkPendingActivity(ctx context.Context, in MarkPendingInput) error {
	a.processor.MarkPending(ctx, in.SessionID, in.FileIDs)
	return nil
}

// ProcessFileActivity never returns an error for a per-file failure; the failure is
// in the output and on the status record. Temporal retries are left to the caller.
func (a *Activities) ProcessFileActivity(ctx context.Context, in ProcessFileInput) (ProcessFileOutput, error) {
	activity.GetLogger(ctx).Info("processing file", "file_id", in.FileID, "session_id", in.SessionID)
	budget := scheduler.Budget{
		Start: time.UnixMilli(in.BudgetStartUnixMs),
		Max:   time.Duration(in.BudgetMaxMs) * time.Millisecond,
	}
	if in.BudgetStartUnixMs == 0 {
		budget.Start = time.Now()
	}
	return a.processor.ProcessFile(ctx, in.FileID, in.SessionID, in.PreferredProvider, budget), nil
}
