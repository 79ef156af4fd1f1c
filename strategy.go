package orchestrator

import (
	"context"
	"sort"

	"github.com/taskflow-engine/orchestrator/internal/state"
)

// execEnv bundles what an ExecutionStrategy needs to drive the dispatcher
// over one workflow run, without each strategy re-deriving it.
type execEnv struct {
	wf     *WorkflowDefinition
	tasks  map[string]*TaskDefinition
	runner TaskRunner
	sm     *state.Manager
}

// ExecutionStrategy decides which ready tasks to dispatch next and in what
// order; all four implementations drive the same Dispatcher through
// TaskRunner. Collapses the "four concrete executor classes" the source
// has into one interface selected by a tag value, per spec.md §9.
type ExecutionStrategy interface {
	Run(ctx context.Context, env *execEnv) error
}

// StrategyFactory constructs an ExecutionStrategy.
type StrategyFactory func() ExecutionStrategy

var strategyRegistry = map[Strategy]StrategyFactory{
	StrategySequential:  func() ExecutionStrategy { return &sequentialStrategy{} },
	StrategyParallel:    func() ExecutionStrategy { return &parallelStrategy{} },
	StrategyDAG:         func() ExecutionStrategy { return &dagStrategy{} },
	StrategyConditional: func() ExecutionStrategy { return &conditionalStrategy{} },
}

// RegisterStrategy installs a custom ExecutionStrategy implementation
// under name, overriding a built-in one if it shares the name.
func RegisterStrategy(name Strategy, f StrategyFactory) {
	strategyRegistry[name] = f
}

func newStrategy(name Strategy) (ExecutionStrategy, bool) {
	f, ok := strategyRegistry[name]
	if !ok {
		return nil, false
	}
	return f(), true
}

// sortedByPriorityThenOrder sorts ids by (descending priority, ascending
// declared order), the tiebreak spec.md §4.6 uses for Sequential/DAG
// dispatch ordering.
func sortedByPriorityThenOrder(ids []string, tasks map[string]*TaskDefinition, declaredOrder map[string]int) []string {
	out := append([]string(nil), ids...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := tasks[out[i]], tasks[out[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return declaredOrder[out[i]] < declaredOrder[out[j]]
	})
	return out
}

func declaredOrderIndex(wf *WorkflowDefinition) map[string]int {
	idx := make(map[string]int, len(wf.Tasks))
	for i, t := range wf.Tasks {
		idx[t.ID] = i
	}
	return idx
}

type taskOutcome struct {
	taskID string
	result TaskResult
	err    error
}
