package orchestrator

import "context"

// Hooks is the concrete shape of the "progress callback" spec.md §4.7
// describes, generalized into the teacher's composable hook-set pattern:
// a progress_callback is just a workflow that wires every relevant field.
// Any nil field is simply not invoked. Hook bodies must not block
// significantly; panics and errors they raise are caught by
// ComposeHooks/the dispatcher and never propagate to the caller.
type Hooks struct {
	OnWorkflowStart    func(ctx context.Context, workflowID string, wf *WorkflowDefinition)
	OnWorkflowComplete func(ctx context.Context, workflowID string, state WorkflowState)
	OnWorkflowFail     func(ctx context.Context, workflowID string, err error)
	OnTaskStart        func(ctx context.Context, workflowID, taskID string)
	OnTaskComplete     func(ctx context.Context, workflowID, taskID string, result TaskResult)
	OnRetry            func(ctx context.Context, workflowID, taskID string, attempt int, err error)
}

// ComposeHooks fans a call out to every non-nil field across hs, in order,
// catching panics from each so one misbehaving callback cannot abort a
// workflow or take down the process.
func ComposeHooks(hs ...Hooks) Hooks {
	return Hooks{
		OnWorkflowStart: func(ctx context.Context, id string, wf *WorkflowDefinition) {
			for _, h := range hs {
				if h.OnWorkflowStart != nil {
					safeCall(func() { h.OnWorkflowStart(ctx, id, wf) })
				}
			}
		},
		OnWorkflowComplete: func(ctx context.Context, id string, state WorkflowState) {
			for _, h := range hs {
				if h.OnWorkflowComplete != nil {
					safeCall(func() { h.OnWorkflowComplete(ctx, id, state) })
				}
			}
		},
		OnWorkflowFail: func(ctx context.Context, id string, err error) {
			for _, h := range hs {
				if h.OnWorkflowFail != nil {
					safeCall(func() { h.OnWorkflowFail(ctx, id, err) })
				}
			}
		},
		OnTaskStart: func(ctx context.Context, wfID, taskID string) {
			for _, h := range hs {
				if h.OnTaskStart != nil {
					safeCall(func() { h.OnTaskStart(ctx, wfID, taskID) })
				}
			}
		},
		OnTaskComplete: func(ctx context.Context, wfID, taskID string, result TaskResult) {
			for _, h := range hs {
				if h.OnTaskComplete != nil {
					safeCall(func() { h.OnTaskComplete(ctx, wfID, taskID, result) })
				}
			}
		},
		OnRetry: func(ctx context.Context, wfID, taskID string, attempt int, err error) {
			for _, h := range hs {
				if h.OnRetry != nil {
					safeCall(func() { h.OnRetry(ctx, wfID, taskID, attempt, err) })
				}
			}
		},
	}
}

// safeCall invokes fn, recovering and discarding any panic. Hook errors and
// panics must never propagate to the orchestrator per spec.md §4.7/§7.
func safeCall(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
