package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoWorker() Worker {
	return WorkerFunc(func(ctx context.Context, desc string, params map[string]any, skills map[string]string, deps map[string]Output) (Output, error) {
		return Output{Kind: OutputString, String: desc}, nil
	})
}

func newTestOrchestrator(t *testing.T, workers ...WorkerRouting) *Orchestrator {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Workers = workers
	o, err := New(cfg)
	require.NoError(t, err)
	return o
}

func TestOrchestrator_SequentialChain(t *testing.T) {
	o := newTestOrchestrator(t, WorkerRouting{WorkerType: "w", Worker: echoWorker(), MaxConcurrentTasks: 1})
	wf := &WorkflowDefinition{
		ID:               "chain",
		Strategy:         StrategySequential,
		MaxParallelTasks: 1,
		Tasks: []TaskDefinition{
			{ID: "a", Description: "a", WorkerType: "w", Priority: 5, Retry: DefaultRetryPolicy()},
			{ID: "b", Description: "b", WorkerType: "w", Priority: 5, DependsOn: []string{"a"}, Retry: DefaultRetryPolicy()},
			{ID: "c", Description: "c", WorkerType: "w", Priority: 5, DependsOn: []string{"b"}, Retry: DefaultRetryPolicy()},
		},
	}

	state, err := o.ExecuteWorkflow(context.Background(), wf, ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, WorkflowCompleted, state.Status)
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, StatusCompleted, state.Tasks[id])
	}
}

func TestOrchestrator_DAGDiamond(t *testing.T) {
	var bRunning, cRunning atomic.Bool
	var sawOverlap atomic.Bool
	worker := WorkerFunc(func(ctx context.Context, desc string, params map[string]any, skills map[string]string, deps map[string]Output) (Output, error) {
		switch desc {
		case "b":
			bRunning.Store(true)
			defer bRunning.Store(false)
		case "c":
			cRunning.Store(true)
			defer cRunning.Store(false)
		}
		if bRunning.Load() && cRunning.Load() {
			sawOverlap.Store(true)
		}
		time.Sleep(5 * time.Millisecond)
		return Output{Kind: OutputString, String: desc}, nil
	})

	o := newTestOrchestrator(t, WorkerRouting{WorkerType: "w", Worker: worker, MaxConcurrentTasks: 4})
	wf := &WorkflowDefinition{
		ID:               "diamond",
		Strategy:         StrategyDAG,
		MaxParallelTasks: 4,
		Tasks: []TaskDefinition{
			{ID: "a", Description: "a", WorkerType: "w", Priority: 5, Retry: DefaultRetryPolicy()},
			{ID: "b", Description: "b", WorkerType: "w", Priority: 5, DependsOn: []string{"a"}, Retry: DefaultRetryPolicy()},
			{ID: "c", Description: "c", WorkerType: "w", Priority: 5, DependsOn: []string{"a"}, Retry: DefaultRetryPolicy()},
			{ID: "d", Description: "d", WorkerType: "w", Priority: 5, DependsOn: []string{"b", "c"}, Retry: DefaultRetryPolicy()},
		},
	}

	state, err := o.ExecuteWorkflow(context.Background(), wf, ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, WorkflowCompleted, state.Status)
	assert.True(t, sawOverlap.Load(), "b and c should run concurrently once a completes")
}

func TestOrchestrator_RetryThenSucceed(t *testing.T) {
	var attempts atomic.Int32
	worker := WorkerFunc(func(ctx context.Context, desc string, params map[string]any, skills map[string]string, deps map[string]Output) (Output, error) {
		n := attempts.Add(1)
		if n < 3 {
			return Output{}, errors.New("flaky")
		}
		return Output{Kind: OutputString, String: "ok"}, nil
	})
	o := newTestOrchestrator(t, WorkerRouting{WorkerType: "w", Worker: worker, MaxConcurrentTasks: 1})
	wf := &WorkflowDefinition{
		ID:               "retry",
		Strategy:         StrategySequential,
		MaxParallelTasks: 1,
		Tasks: []TaskDefinition{
			{ID: "a", Description: "a", WorkerType: "w", Priority: 5, Retry: RetryPolicy{MaxRetries: 3, InitialDelay: time.Millisecond, BackoffMultiplier: 1, MaxDelay: time.Millisecond}},
		},
	}

	state, err := o.ExecuteWorkflow(context.Background(), wf, ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, WorkflowCompleted, state.Status)
	assert.Equal(t, 3, state.Results["a"].Attempts)
}

func TestOrchestrator_RetriesExhaustedAfterPersistentFailure(t *testing.T) {
	worker := WorkerFunc(func(ctx context.Context, desc string, params map[string]any, skills map[string]string, deps map[string]Output) (Output, error) {
		return Output{}, errors.New("permanent failure")
	})
	o := newTestOrchestrator(t, WorkerRouting{WorkerType: "w", Worker: worker, MaxConcurrentTasks: 1})
	wf := &WorkflowDefinition{
		ID:                "exhaust",
		Strategy:          StrategySequential,
		MaxParallelTasks:  1,
		ContinueOnFailure: false,
		Tasks: []TaskDefinition{
			{ID: "a", Description: "a", WorkerType: "w", Priority: 5, Retry: RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, BackoffMultiplier: 1, MaxDelay: time.Millisecond}},
			{ID: "b", Description: "b", WorkerType: "w", Priority: 5, DependsOn: []string{"a"}, Retry: DefaultRetryPolicy()},
		},
	}

	state, err := o.ExecuteWorkflow(context.Background(), wf, ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, WorkflowFailed, state.Status)
	assert.Equal(t, StatusFailed, state.Tasks["a"])
	assert.Equal(t, StatusSkipped, state.Tasks["b"])
	assert.Equal(t, 3, state.Results["a"].Attempts)
}

func TestOrchestrator_SkippedTaskFailsWorkflowWhenContinueOnFailureFalse(t *testing.T) {
	o := newTestOrchestrator(t, WorkerRouting{WorkerType: "w", Worker: echoWorker(), MaxConcurrentTasks: 4})
	wf := &WorkflowDefinition{
		ID:                "conditional-strict",
		Strategy:          StrategyConditional,
		MaxParallelTasks:  4,
		ContinueOnFailure: false,
		Tasks: []TaskDefinition{
			{ID: "check", Description: "check", WorkerType: "w", Priority: 5, Retry: DefaultRetryPolicy()},
			{ID: "maybe", Description: "maybe", WorkerType: "w", Priority: 5, DependsOn: []string{"check"}, Condition: "NOT check", Retry: DefaultRetryPolicy()},
		},
	}

	state, err := o.ExecuteWorkflow(context.Background(), wf, ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, state.Tasks["check"])
	assert.Equal(t, StatusSkipped, state.Tasks["maybe"])
	assert.Equal(t, WorkflowFailed, state.Status, "a skipped (non-completed) task must fail the workflow when continue-on-failure is false, even though no task literally failed")
}

func TestOrchestrator_ConditionalSkipCascade(t *testing.T) {
	o := newTestOrchestrator(t, WorkerRouting{WorkerType: "w", Worker: echoWorker(), MaxConcurrentTasks: 4})
	wf := &WorkflowDefinition{
		ID:                "conditional",
		Strategy:          StrategyConditional,
		MaxParallelTasks:  4,
		ContinueOnFailure: true,
		Tasks: []TaskDefinition{
			{ID: "check", Description: "check", WorkerType: "w", Priority: 5, Retry: DefaultRetryPolicy()},
			{ID: "fix", Description: "fix", WorkerType: "w", Priority: 5, DependsOn: []string{"check"}, Condition: "NOT check", Retry: DefaultRetryPolicy()},
			{ID: "report", Description: "report", WorkerType: "w", Priority: 5, DependsOn: []string{"check"}, Retry: DefaultRetryPolicy()},
		},
	}

	state, err := o.ExecuteWorkflow(context.Background(), wf, ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, WorkflowCompleted, state.Status)
	assert.Equal(t, StatusCompleted, state.Tasks["check"])
	assert.Equal(t, StatusSkipped, state.Tasks["fix"])
	assert.Equal(t, "condition_unmet", state.Results["fix"].SkipReason)
	assert.Equal(t, StatusCompleted, state.Tasks["report"])
}

func TestOrchestrator_CyclicWorkflowRejectedWithoutInvokingWorker(t *testing.T) {
	invoked := false
	worker := WorkerFunc(func(ctx context.Context, desc string, params map[string]any, skills map[string]string, deps map[string]Output) (Output, error) {
		invoked = true
		return Output{}, nil
	})
	o := newTestOrchestrator(t, WorkerRouting{WorkerType: "w", Worker: worker, MaxConcurrentTasks: 1})
	wf := &WorkflowDefinition{
		ID:               "cyclic",
		Strategy:         StrategyDAG,
		MaxParallelTasks: 1,
		Tasks: []TaskDefinition{
			{ID: "a", Description: "a", WorkerType: "w", Priority: 5, DependsOn: []string{"b"}, Retry: DefaultRetryPolicy()},
			{ID: "b", Description: "b", WorkerType: "w", Priority: 5, DependsOn: []string{"a"}, Retry: DefaultRetryPolicy()},
		},
	}

	_, err := o.ExecuteWorkflow(context.Background(), wf, ExecuteOptions{})
	require.Error(t, err)
	assert.Equal(t, ErrCodeCyclicDependency, Code(err))
	assert.False(t, invoked)
}

func TestOrchestrator_ExecuteTask(t *testing.T) {
	o := newTestOrchestrator(t, WorkerRouting{WorkerType: "w", Worker: echoWorker(), MaxConcurrentTasks: 1})
	task := TaskDefinition{ID: "solo", Description: "solo", WorkerType: "w", Priority: 5, Retry: DefaultRetryPolicy()}

	result, err := o.ExecuteTask(context.Background(), task)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
}

func TestOrchestrator_CancelWorkflowStopsFurtherDispatch(t *testing.T) {
	worker := WorkerFunc(func(ctx context.Context, desc string, params map[string]any, skills map[string]string, deps map[string]Output) (Output, error) {
		time.Sleep(10 * time.Millisecond)
		return Output{Kind: OutputString, String: desc}, nil
	})
	o := newTestOrchestrator(t, WorkerRouting{WorkerType: "w", Worker: worker, MaxConcurrentTasks: 1})
	wf := &WorkflowDefinition{
		ID:               "cancel-me",
		Strategy:         StrategySequential,
		MaxParallelTasks: 1,
		Tasks: []TaskDefinition{
			{ID: "a", Description: "a", WorkerType: "w", Priority: 5, Retry: DefaultRetryPolicy()},
			{ID: "b", Description: "b", WorkerType: "w", Priority: 5, DependsOn: []string{"a"}, Retry: DefaultRetryPolicy()},
		},
	}

	go func() {
		time.Sleep(2 * time.Millisecond)
		o.CancelWorkflow("cancel-me")
	}()

	state, err := o.ExecuteWorkflow(context.Background(), wf, ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, WorkflowCancelled, state.Status)
}

func TestOrchestrator_GetWorkflowStateAndProgress(t *testing.T) {
	o := newTestOrchestrator(t, WorkerRouting{WorkerType: "w", Worker: echoWorker(), MaxConcurrentTasks: 1})
	wf := &WorkflowDefinition{
		ID:               "introspect",
		Strategy:         StrategySequential,
		MaxParallelTasks: 1,
		Tasks: []TaskDefinition{
			{ID: "a", Description: "a", WorkerType: "w", Priority: 5, Retry: DefaultRetryPolicy()},
		},
	}

	_, err := o.ExecuteWorkflow(context.Background(), wf, ExecuteOptions{})
	require.NoError(t, err)

	st, ok := o.GetWorkflowState("introspect")
	require.True(t, ok)
	assert.Equal(t, WorkflowCompleted, st.Status)

	progress, ok := o.GetWorkflowProgress("introspect")
	require.True(t, ok)
	assert.Equal(t, 100.0, progress.PercentDone)

	_, ok = o.GetWorkflowState("ghost")
	assert.False(t, ok)
}

func TestOrchestrator_CacheStatsDisabledByDefault(t *testing.T) {
	o := newTestOrchestrator(t, WorkerRouting{WorkerType: "w", Worker: echoWorker(), MaxConcurrentTasks: 1})
	stats := o.GetCacheStats()
	assert.Equal(t, "none", stats.Strategy)
}

func TestNew_RejectsNilWorker(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Workers = []WorkerRouting{{WorkerType: "w"}}
	_, err := New(cfg)
	assert.Error(t, err)
}
