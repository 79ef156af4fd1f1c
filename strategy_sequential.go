package orchestrator

import "context"

// sequentialStrategy runs one ready task at a time, highest priority then
// declared order first, stopping on the first non-completed outcome unless
// the workflow sets ContinueOnFailure. Grounded on the teacher's
// providers/graph/basic.go topological traversal, specialized to width 1.
type sequentialStrategy struct{}

func (s *sequentialStrategy) Run(ctx context.Context, env *execEnv) error {
	order := declaredOrderIndex(env.wf)

	for {
		if env.sm.AllTerminal() {
			return nil
		}
		ready := env.sm.ReadyTasks()
		if len(ready) == 0 {
			return nil
		}

		id := sortedByPriorityThenOrder(ready, env.tasks, order)[0]
		result, _ := env.runner.RunTask(ctx, env.wf, env.tasks[id])

		if result.Status != StatusCompleted {
			env.sm.SkipDependents("dependency_failed")
			if !env.wf.ContinueOnFailure {
				env.sm.SkipRemaining("workflow_stopped")
				return nil
			}
		}
	}
}
