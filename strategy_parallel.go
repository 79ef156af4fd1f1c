package orchestrator

import (
	"context"
	"sync"
)

// parallelStrategy treats every task as independent (validated at
// submission time to carry no dependencies) and dispatches up to
// MaxParallelTasks of them concurrently. Grounded on the teacher's
// orchestration/scatter.go fan-out-with-WaitGroup shape.
type parallelStrategy struct{}

func (s *parallelStrategy) Run(ctx context.Context, env *execEnv) error {
	sem := make(chan struct{}, env.wf.MaxParallelTasks)
	var wg sync.WaitGroup

	for _, t := range env.wf.Tasks {
		task := t
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			_, _ = env.runner.RunTask(ctx, env.wf, env.tasks[task.ID])
		}()
	}

	wg.Wait()
	return nil
}
