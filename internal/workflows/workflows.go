package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"labflow/internal/activities"
	"labflow/internal/scheduler"
)

// SessionProcessWorkflow runs ProcessFileActivity over the session's files with the
// same admission rules as the in-process scheduler: at most MaxConcurrent in flight,
// no new admissions past the soft deadline, and every admitted file is waited for.
func SessionProcessWorkflow(ctx workflow.Context, input SessionProcessInput) (SessionProcessOutput, error) {
	progress := SessionProcessProgress{
		SessionID: input.SessionID,
		Total:     len(input.FileIDs),
		PerFile:   map[string]string{},
	}
	for _, id := range input.FileIDs {
		progress.PerFile[id] = "pending"
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetSessionProgress, func() (SessionProcessProgress, error) {
		return progress, nil
	}); err != nil {
		return SessionProcessOutput{}, err
	}

	maxC := input.MaxConcurrent
	if maxC <= 0 {
		maxC = scheduler.DefaultMaxConcurrent
	}
	maxDur := time.Duration(input.MaxDurationMs) * time.Millisecond
	if maxDur <= 0 {
		maxDur = scheduler.DefaultMaxDuration
	}
	softDeadline := time.Duration(float64(maxDur) * scheduler.SoftDeadlineFraction)

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    2 * time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    20 * time.Second,
			MaximumAttempts:    1,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	if err := workflow.ExecuteActivity(ctx, activities.MarkPendingActivityName, activities.MarkPendingInput{
		SessionID: input.SessionID,
		FileIDs:   input.FileIDs,
	}).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Warn("mark pending failed", "error", err)
	}

	start := workflow.Now(ctx)
	out := SessionProcessOutput{SessionID: input.SessionID, Results: make([]activities.ProcessFileOutput, 0, len(input.FileIDs))}
	selector := workflow.NewSelector(ctx)
	record := func(id string, f workflow.Future) {
		var res activities.ProcessFileOutput
		if err := f.Get(ctx, &res); err != nil {
			res = activities.ProcessFileOutput{FileID: id, Error: err.Error(), ErrorCode: "PROCESSING_ERROR"}
		}
		out.Results = append(out.Results, res)
		progress.Done++
		if res.Success {
			progress.PerFile[id] = "completed"
		} else {
			progress.Failed++
			progress.PerFile[id] = "failed"
		}
	}

	next, inFlight := 0, 0
	for next < len(input.FileIDs) || inFlight > 0 {
		if workflow.Now(ctx).Sub(start) > softDeadline {
			progress.TimedOut = true
			workflow.GetLogger(ctx).Warn("soft deadline reached, draining in-flight files", "admitted", next, "total", len(input.FileIDs))
			break
		}
		for inFlight < maxC && next < len(input.FileIDs) {
			id := input.FileIDs[next]
			next++
			inFlight++
			progress.Admitted = next
			progress.PerFile[id] = "processing"
			f := workflow.ExecuteActivity(ctx, activities.ProcessFileActivityName, activities.ProcessFileInput{
				FileID:            id,
				SessionID:         input.SessionID,
				PreferredProvider: input.PreferredProvider,
				BudgetStartUnixMs: start.UnixMilli(),
				BudgetMaxMs:       maxDur.Milliseconds(),
			})
			selector.AddFuture(f, func(f workflow.Future) { record(id, f) })
		}
		selector.Select(ctx)
		inFlight--
	}
	for ; inFlight > 0; inFlight-- {
		selector.Select(ctx)
	}

	out.TimedOut = progress.TimedOut
	return out, nil
}
