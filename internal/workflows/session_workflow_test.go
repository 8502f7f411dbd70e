package workflows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"

	"labflow/internal/activities"
)

func registerActivityName[T any](env *testsuite.TestWorkflowEnvironment, name string, fn T) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func newEnv() *testsuite.TestWorkflowEnvironment {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflow(SessionProcessWorkflow)
	registerActivityName(env, activities.MarkPendingActivityName, func(context.Context, activities.MarkPendingInput) error { return nil })
	registerActivityName(env, activities.ProcessFileActivityName, func(context.Context, activities.ProcessFileInput) (activities.ProcessFileOutput, error) {
		return activities.ProcessFileOutput{}, nil
	})
	return env
}

func fileInput(id string) interface{} {
	return mock.MatchedBy(func(in activities.ProcessFileInput) bool {
		return in.FileID == id && in.SessionID == "s1" && in.BudgetMaxMs == 50000 && in.BudgetStartUnixMs > 0
	})
}

func TestSessionProcessWorkflowProcessesEveryFile(t *testing.T) {
	env := newEnv()
	env.OnActivity(activities.MarkPendingActivityName, mock.Anything, activities.MarkPendingInput{SessionID: "s1", FileIDs: []string{"a", "b", "c"}}).Return(nil).Once()
	env.OnActivity(activities.ProcessFileActivityName, mock.Anything, fileInput("a")).Return(activities.ProcessFileOutput{FileID: "a", Success: true, Provider: "openai"}, nil)
	env.OnActivity(activities.ProcessFileActivityName, mock.Anything, fileInput("b")).Return(activities.ProcessFileOutput{FileID: "b", ErrorCode: "PROVIDER_UNAVAILABLE", IsRetryable: true}, nil)
	env.OnActivity(activities.ProcessFileActivityName, mock.Anything, fileInput("c")).Return(activities.ProcessFileOutput{}, errors.New("worker lost"))

	env.ExecuteWorkflow(SessionProcessWorkflow, SessionProcessInput{SessionID: "s1", FileIDs: []string{"a", "b", "c"}, MaxConcurrent: 2})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out SessionProcessOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.False(t, out.TimedOut)
	require.Len(t, out.Results, 3)

	byID := map[string]activities.ProcessFileOutput{}
	for _, r := range out.Results {
		byID[r.FileID] = r
	}
	assert.True(t, byID["a"].Success)
	assert.Equal(t, "PROVIDER_UNAVAILABLE", byID["b"].ErrorCode)
	assert.Equal(t, "PROCESSING_ERROR", byID["c"].ErrorCode)

	q, err := env.QueryWorkflow(QueryGetSessionProgress)
	require.NoError(t, err)
	var prog SessionProcessProgress
	require.NoError(t, q.Get(&prog))
	assert.Equal(t, 3, prog.Total)
	assert.Equal(t, 3, prog.Done)
	assert.Equal(t, 2, prog.Failed)
	assert.Equal(t, "completed", prog.PerFile["a"])
	assert.Equal(t, "failed", prog.PerFile["c"])
	env.AssertExpectations(t)
}

func TestSessionProcessWorkflowSoftDeadlineWithEverythingAdmitted(t *testing.T) {
	env := newEnv()
	env.OnActivity(activities.MarkPendingActivityName, mock.Anything, mock.Anything).Return(nil)
	byFile := func(id string) interface{} {
		return mock.MatchedBy(func(in activities.ProcessFileInput) bool { return in.FileID == id })
	}
	env.OnActivity(activities.ProcessFileActivityName, mock.Anything, byFile("a")).
		Return(activities.ProcessFileOutput{FileID: "a", Success: true}, nil).After(200 * time.Millisecond)
	env.OnActivity(activities.ProcessFileActivityName, mock.Anything, byFile("b")).
		Return(activities.ProcessFileOutput{FileID: "b", Success: true}, nil).After(400 * time.Millisecond)

	env.ExecuteWorkflow(SessionProcessWorkflow, SessionProcessInput{SessionID: "s1", FileIDs: []string{"a", "b"}, MaxConcurrent: 3, MaxDurationMs: 100})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out SessionProcessOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.True(t, out.TimedOut)
	assert.Len(t, out.Results, 2)
}

func TestSessionProcessWorkflowMarkPendingFailureIsNotFatal(t *testing.T) {
	env := newEnv()
	env.OnActivity(activities.MarkPendingActivityName, mock.Anything, mock.Anything).Return(errors.New("db down"))
	env.OnActivity(activities.ProcessFileActivityName, mock.Anything, mock.Anything).Return(activities.ProcessFileOutput{FileID: "a", Success: true}, nil)

	env.ExecuteWorkflow(SessionProcessWorkflow, SessionProcessInput{SessionID: "s1", FileIDs: []string{"a"}})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out SessionProcessOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	require.Len(t, out.Results, 1)
	assert.True(t, out.Results[0].Success)
}

func TestSessionProcessWorkflowEmptySession(t *testing.T) {
	env := newEnv()
	env.OnActivity(activities.MarkPendingActivityName, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(SessionProcessWorkflow, SessionProcessInput{SessionID: "s1"})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var out SessionProcessOutput
	require.NoError(t, env.GetWorkflowResult(&out))
	assert.Empty(t, out.Results)
}
