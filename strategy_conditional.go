package orchestrator

import (
	"context"
	"sync"

	"github.com/taskflow-engine/orchestrator/internal/condition"
)

// conditionalStrategy behaves like the DAG strategy, except a task's
// readiness also admits dependencies that ended non-completed: before
// dispatching, its Condition (if any) decides whether it runs, is skipped
// as "condition_unmet", or — absent a condition — is skipped as
// "dependency_skipped" when any dependency didn't complete.
type conditionalStrategy struct{}

func (s *conditionalStrategy) Run(ctx context.Context, env *execEnv) error {
	order := declaredOrderIndex(env.wf)
	exprs := make(map[string]condition.Expr, len(env.wf.Tasks))
	for _, t := range env.wf.Tasks {
		if t.Condition == "" {
			continue
		}
		expr, err := condition.Parse(t.Condition)
		if err != nil {
			// Already validated at submission time; should a parse
			// fail here anyway, the task is scheduled as if it had no
			// condition.
			continue
		}
		exprs[t.ID] = expr
	}

	sem := make(chan struct{}, maxInt(env.wf.MaxParallelTasks, 1))
	results := make(chan taskOutcome, len(env.wf.Tasks))
	dispatched := make(map[string]bool)
	var wg sync.WaitGroup
	var halted bool

	completed := func(id string) bool { return env.sm.IsCompleted(id) }

	settle := func() {
		for _, id := range sortedByPriorityThenOrder(env.sm.ConditionallyReadyTasks(), env.tasks, order) {
			if dispatched[id] || halted {
				continue
			}
			task := env.tasks[id]

			if expr, ok := exprs[id]; ok {
				if !expr.Eval(completed) {
					dispatched[id] = true
					env.sm.MarkSkipped(id, "condition_unmet")
					continue
				}
				// Condition holds: dispatch even if a dependency
				// didn't complete.
			} else if !env.sm.DepsAllCompleted(id) {
				dispatched[id] = true
				env.sm.MarkSkipped(id, "dependency_skipped")
				continue
			}

			select {
			case sem <- struct{}{}:
				dispatched[id] = true
				wg.Add(1)
				go func(id string, task *TaskDefinition) {
					defer wg.Done()
					defer func() { <-sem }()
					res, err := env.runner.RunTask(ctx, env.wf, task)
					results <- taskOutcome{taskID: id, result: res, err: err}
				}(id, task)
			default:
				// No free slot this pass; retry once a running task
				// frees one.
			}
		}
	}

	for {
		settle()
		if !env.sm.AnyRunning() && len(env.sm.ConditionallyReadyTasks()) == 0 {
			break
		}
		if env.sm.AnyRunning() {
			outcome := <-results
			if outcome.result.Status != StatusCompleted && !env.wf.ContinueOnFailure {
				halted = true
				env.sm.SkipRemaining("workflow_stopped")
			}
		}
	}
	wg.Wait()
	return nil
}
