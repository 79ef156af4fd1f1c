package orchestrator

import (
	"context"
	"sync"
)

// dagStrategy repeatedly queries the ready set and dispatches up to
// MaxParallelTasks of them, recomputing the ready set as tasks terminate.
// Grounded on the teacher's providers/graph/basic.go topological queue
// traversal, generalized from sequential to a bounded concurrency pool.
type dagStrategy struct{}

func (s *dagStrategy) Run(ctx context.Context, env *execEnv) error {
	order := declaredOrderIndex(env.wf)
	sem := make(chan struct{}, maxInt(env.wf.MaxParallelTasks, 1))
	results := make(chan taskOutcome, len(env.wf.Tasks))
	dispatched := make(map[string]bool)
	var wg sync.WaitGroup
	var halted bool

	dispatchReady := func() {
		if halted {
			return
		}
		for _, id := range sortedByPriorityThenOrder(env.sm.ReadyTasks(), env.tasks, order) {
			if dispatched[id] {
				continue
			}
			select {
			case sem <- struct{}{}:
				dispatched[id] = true
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					defer func() { <-sem }()
					res, err := env.runner.RunTask(ctx, env.wf, env.tasks[id])
					results <- taskOutcome{taskID: id, result: res, err: err}
				}(id)
			default:
				return
			}
		}
	}

	dispatchReady()
	for {
		if !env.sm.AnyRunning() && len(env.sm.ReadyTasks()) == 0 {
			break
		}
		outcome := <-results
		if outcome.result.Status != StatusCompleted {
			env.sm.SkipDependents("dependency_failed")
			if !env.wf.ContinueOnFailure {
				halted = true
				env.sm.SkipRemaining("workflow_stopped")
			}
		}
		dispatchReady()
	}
	wg.Wait()
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
