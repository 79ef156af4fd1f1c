package orchestrator

import "context"

// TaskRunner runs one task through to a terminal status, retries
// included. The Dispatcher implements it;
// Middleware lets the Orchestrator wrap it with cross-cutting behavior
// (tracing spans, hook dispatch) without the Dispatcher itself knowing
// about either.
type TaskRunner interface {
	RunTask(ctx context.Context, wf *WorkflowDefinition, task *TaskDefinition) (TaskResult, error)
}

// TaskRunnerFunc adapts a function to TaskRunner.
type TaskRunnerFunc func(ctx context.Context, wf *WorkflowDefinition, task *TaskDefinition) (TaskResult, error)

func (f TaskRunnerFunc) RunTask(ctx context.Context, wf *WorkflowDefinition, task *TaskDefinition) (TaskResult, error) {
	return f(ctx, wf, task)
}

// Middleware wraps a TaskRunner with additional behavior.
type Middleware func(TaskRunner) TaskRunner

// ApplyMiddleware wraps base with mws in order: the first middleware in
// mws is the outermost layer, so its behavior runs before it delegates to
// the next.
func ApplyMiddleware(base TaskRunner, mws ...Middleware) TaskRunner {
	wrapped := base
	for i := len(mws) - 1; i >= 0; i-- {
		wrapped = mws[i](wrapped)
	}
	return wrapped
}

// WithHooks returns a Middleware that invokes h.OnTaskStart / h.OnTaskComplete
// around the wrapped runner's call, mirroring the teacher's
// workflow.WithHooks shape.
func WithHooks(h Hooks) Middleware {
	return func(next TaskRunner) TaskRunner {
		return TaskRunnerFunc(func(ctx context.Context, wf *WorkflowDefinition, task *TaskDefinition) (TaskResult, error) {
			if h.OnTaskStart != nil {
				safeCall(func() { h.OnTaskStart(ctx, wf.ID, task.ID) })
			}
			result, err := next.RunTask(ctx, wf, task)
			if h.OnTaskComplete != nil {
				safeCall(func() { h.OnTaskComplete(ctx, wf.ID, task.ID, result) })
			}
			return result, err
		})
	}
}

// WithTracing returns a Middleware that starts a task span for each call
// via m.
func WithTracing(m *Metrics) Middleware {
	return func(next TaskRunner) TaskRunner {
		return TaskRunnerFunc(func(ctx context.Context, wf *WorkflowDefinition, task *TaskDefinition) (TaskResult, error) {
			ctx, span := m.StartTaskSpan(ctx, task.ID, "run")
			defer span.End()
			result, err := next.RunTask(ctx, wf, task)
			if err != nil {
				span.RecordError(err)
			}
			return result, err
		})
	}
}
