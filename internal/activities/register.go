package activities

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
)

func Register(w worker.Worker, a *Activities) {
	w.RegisterActivityWithOptions(a.MarkPendingActivity, activity.RegisterOptions{Name: MarkPendingActivityName})
	w.RegisterActivityWithOptions(a.ProcessFileActivity, activity.RegisterOptions{Name: ProcessFileActivityName})
}
