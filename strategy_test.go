package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-engine/orchestrator/internal/state"
)

// recordingRunner is a TaskRunner whose outcome per task id is pre-scripted.
// It records the order and peak concurrency of calls it receives and drives
// the shared state.Manager the way the real Dispatcher would, so dependent
// tasks become ready.
type recordingRunner struct {
	sm *state.Manager

	mu            sync.Mutex
	outcomes      map[string]TaskResult
	called        []string
	concurrent    int
	maxConcurrent int
}

func (r *recordingRunner) RunTask(ctx context.Context, wf *WorkflowDefinition, task *TaskDefinition) (TaskResult, error) {
	r.mu.Lock()
	r.called = append(r.called, task.ID)
	r.concurrent++
	if r.concurrent > r.maxConcurrent {
		r.maxConcurrent = r.concurrent
	}
	outcome := r.outcomes[task.ID]
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.concurrent--
		r.mu.Unlock()
	}()

	status := outcome.Status
	if status == "" {
		status = StatusCompleted
	}

	r.sm.MarkRunning(task.ID, "fake-worker")
	switch status {
	case StatusCompleted:
		r.sm.MarkCompleted(task.ID, Output{Kind: OutputString, String: "ok"})
		return toRootResult(r.sm.Result(task.ID)), nil
	default:
		r.sm.MarkFailed(task.ID, ErrTaskFailed("test", task.ID, assertErr))
		return toRootResult(r.sm.Result(task.ID)), assertErr
	}
}

var assertErr = errTaskFailedForTest{}

type errTaskFailedForTest struct{}

func (errTaskFailedForTest) Error() string { return "scripted failure" }

// newEnv builds an execEnv for wf wired to a fresh recordingRunner driven by
// the env's own state.Manager, with outcomes scripted per task id.
func newEnv(t *testing.T, wf *WorkflowDefinition, outcomes map[string]TaskResult) (*execEnv, *recordingRunner) {
	t.Helper()
	sm := state.New()
	deps := make(map[string][]string, len(wf.Tasks))
	tasks := make(map[string]*TaskDefinition, len(wf.Tasks))
	ids := make([]string, len(wf.Tasks))
	for i := range wf.Tasks {
		task := &wf.Tasks[i]
		tasks[task.ID] = task
		deps[task.ID] = task.DependsOn
		ids[i] = task.ID
	}
	sm.Initialize(ids, deps)

	runner := &recordingRunner{sm: sm, outcomes: outcomes}
	env := &execEnv{wf: wf, tasks: tasks, runner: runner, sm: sm}
	return env, runner
}

func runStrategyAndSync(t *testing.T, strategy ExecutionStrategy, env *execEnv) {
	t.Helper()
	require.NoError(t, strategy.Run(context.Background(), env))
}

func TestSequentialStrategy_RunsInPriorityThenDeclaredOrder(t *testing.T) {
	wf := &WorkflowDefinition{
		ID: "wf",
		Tasks: []TaskDefinition{
			{ID: "low", Priority: 1},
			{ID: "high", Priority: 9},
			{ID: "mid", Priority: 5},
		},
		ContinueOnFailure: true,
	}
	env, runner := newEnv(t, wf, map[string]TaskResult{})
	runStrategyAndSync(t, &sequentialStrategy{}, env)

	assert.Equal(t, []string{"high", "mid", "low"}, runner.called)
}

func TestSequentialStrategy_HaltsOnFailureWhenContinueOnFailureFalse(t *testing.T) {
	wf := &WorkflowDefinition{
		ID: "wf",
		Tasks: []TaskDefinition{
			{ID: "a", Priority: 5},
			{ID: "b", Priority: 5, DependsOn: []string{"a"}},
		},
		ContinueOnFailure: false,
	}
	env, runner := newEnv(t, wf, map[string]TaskResult{"a": {Status: StatusFailed}})
	runStrategyAndSync(t, &sequentialStrategy{}, env)

	assert.Equal(t, []string{"a"}, runner.called)
	assert.Equal(t, state.Skipped, env.sm.Status("b"))
}

func TestParallelStrategy_RunsAllIndependentTasksConcurrently(t *testing.T) {
	wf := &WorkflowDefinition{
		ID:               "wf",
		MaxParallelTasks: 4,
		Tasks: []TaskDefinition{
			{ID: "a"}, {ID: "b"}, {ID: "c"},
		},
	}
	env, runner := newEnv(t, wf, map[string]TaskResult{})
	runStrategyAndSync(t, &parallelStrategy{}, env)

	assert.ElementsMatch(t, []string{"a", "b", "c"}, runner.called)
}

func TestParallelStrategy_BoundsConcurrencyToMaxParallelTasks(t *testing.T) {
	wf := &WorkflowDefinition{
		ID:               "wf",
		MaxParallelTasks: 2,
		Tasks: []TaskDefinition{
			{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"},
		},
	}
	env, runner := newEnv(t, wf, map[string]TaskResult{})
	runStrategyAndSync(t, &parallelStrategy{}, env)

	assert.LessOrEqual(t, runner.maxConcurrent, 2)
}

func TestDAGStrategy_RunsDiamondRespectingDependencies(t *testing.T) {
	wf := &WorkflowDefinition{
		ID:               "wf",
		MaxParallelTasks: 4,
		Tasks: []TaskDefinition{
			{ID: "a"},
			{ID: "b", DependsOn: []string{"a"}},
			{ID: "c", DependsOn: []string{"a"}},
			{ID: "d", DependsOn: []string{"b", "c"}},
		},
	}
	env, runner := newEnv(t, wf, map[string]TaskResult{})
	runStrategyAndSync(t, &dagStrategy{}, env)

	assert.ElementsMatch(t, []string{"a", "b", "c", "d"}, runner.called)
	assert.Equal(t, "a", runner.called[0])
	assert.Equal(t, "d", runner.called[len(runner.called)-1])
}

func TestDAGStrategy_SkipsDependentsOnFailureAndHalts(t *testing.T) {
	wf := &WorkflowDefinition{
		ID:               "wf",
		MaxParallelTasks: 4,
		ContinueOnFailure: false,
		Tasks: []TaskDefinition{
			{ID: "a"},
			{ID: "b", DependsOn: []string{"a"}},
			{ID: "c"},
		},
	}
	env, _ := newEnv(t, wf, map[string]TaskResult{"a": {Status: StatusFailed}})
	runStrategyAndSync(t, &dagStrategy{}, env)

	assert.Equal(t, state.Skipped, env.sm.Status("b"))
}

func TestConditionalStrategy_SkipsConditionUnmet(t *testing.T) {
	wf := &WorkflowDefinition{
		ID:                "wf",
		MaxParallelTasks:  4,
		ContinueOnFailure: true,
		Tasks: []TaskDefinition{
			{ID: "check"},
			{ID: "fix", DependsOn: []string{"check"}, Condition: "NOT check"},
		},
	}
	env, runner := newEnv(t, wf, map[string]TaskResult{"check": {Status: StatusCompleted}})
	runStrategyAndSync(t, &conditionalStrategy{}, env)

	assert.NotContains(t, runner.called, "fix")
	assert.Equal(t, state.Skipped, env.sm.Status("fix"))
	assert.Equal(t, "condition_unmet", env.sm.Result("fix").SkipReason)
}

func TestConditionalStrategy_SkipsDependencySkippedWithoutCondition(t *testing.T) {
	wf := &WorkflowDefinition{
		ID:                "wf",
		MaxParallelTasks:  4,
		ContinueOnFailure: true,
		Tasks: []TaskDefinition{
			{ID: "a"},
			{ID: "b", DependsOn: []string{"a"}},
		},
	}
	env, runner := newEnv(t, wf, map[string]TaskResult{"a": {Status: StatusFailed}})
	runStrategyAndSync(t, &conditionalStrategy{}, env)

	assert.NotContains(t, runner.called, "b")
	assert.Equal(t, "dependency_skipped", env.sm.Result("b").SkipReason)
}

func TestConditionalStrategy_RunsWhenConditionHoldsDespiteFailedDependency(t *testing.T) {
	wf := &WorkflowDefinition{
		ID:                "wf",
		MaxParallelTasks:  4,
		ContinueOnFailure: true,
		Tasks: []TaskDefinition{
			{ID: "check"},
			{ID: "fallback", DependsOn: []string{"check"}, Condition: "NOT check"},
		},
	}
	env, runner := newEnv(t, wf, map[string]TaskResult{"check": {Status: StatusFailed}})
	runStrategyAndSync(t, &conditionalStrategy{}, env)

	assert.Contains(t, runner.called, "fallback")
}

func TestNewStrategy_UnknownNameReturnsFalse(t *testing.T) {
	_, ok := newStrategy(Strategy("bogus"))
	assert.False(t, ok)
}

func TestNewStrategy_KnownNames(t *testing.T) {
	for _, name := range []Strategy{StrategySequential, StrategyParallel, StrategyDAG, StrategyConditional} {
		s, ok := newStrategy(name)
		assert.True(t, ok)
		assert.NotNil(t, s)
	}
}
