package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/taskflow-engine/orchestrator/internal/router"
	"github.com/taskflow-engine/orchestrator/internal/state"
)

// Dispatcher is the shared machinery for running a single task: cache
// check, worker acquisition via the Router, the retry/timeout loop, cache
// store, and metric recording. Every task it runs reaches exactly one
// terminal status, observed by the State Manager before Run returns.
// Grounded on the teacher's internal/scheduler/retry.go (backoff + jitter,
// circuit breaker, bulkhead) and worker_pool.go (acquire/release around a
// single execution).
type Dispatcher struct {
	state   *state.Manager
	router  *router.Router
	workers map[string]Worker
	cache   *resultCache
	metrics *Metrics
	skills  SkillRegistry
	hooks   Hooks

	breakersMu sync.Mutex
	breakers   map[string]*circuitBreaker
	bulkhead   *bulkhead

	cancel <-chan struct{}
	sleep  func(ctx context.Context, d time.Duration) error
}

func newDispatcher(sm *state.Manager, r *router.Router, workers map[string]Worker, c *resultCache, m *Metrics, skills SkillRegistry, hooks Hooks, cancel <-chan struct{}, maxConcurrent int) *Dispatcher {
	bh := (*bulkhead)(nil)
	if maxConcurrent > 0 {
		bh = newBulkhead(maxConcurrent)
	}
	return &Dispatcher{
		state:    sm,
		router:   r,
		workers:  workers,
		cache:    c,
		metrics:  m,
		skills:   skills,
		hooks:    hooks,
		breakers: make(map[string]*circuitBreaker),
		bulkhead: bh,
		cancel:   cancel,
		sleep:    sleepWithCancel,
	}
}

func sleepWithCancel(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunTask implements TaskRunner. Callers that want hook/tracing middleware
// should wrap a *Dispatcher with ApplyMiddleware rather than calling it
// directly.
func (d *Dispatcher) RunTask(ctx context.Context, wf *WorkflowDefinition, task *TaskDefinition) (TaskResult, error) {
	const op = "Dispatcher.RunTask"
	started := time.Now()
	defer func() {
		d.metrics.RecordTask(ctx, taskRecord{
			WorkflowID: wf.ID,
			TaskID:     task.ID,
			Status:     toRootStatus(d.state.Status(task.ID)),
			Duration:   time.Since(started),
			StartedAt:  started,
			EndedAt:    time.Now(),
			Retries:    d.state.Result(task.ID).Attempts - 1,
			WorkerID:   d.state.Result(task.ID).WorkerID,
		})
	}()

	// Resolve required skills up front; a missing skill is a hard,
	// non-retryable failure.
	loadedSkills := make(map[string]string, len(task.RequiredSkills))
	for _, name := range task.RequiredSkills {
		body, ok := d.skills.Lookup(name)
		if !ok {
			err := ErrRequiredSkillNotFound(op, name, d.skills.Names())
			d.state.MarkFailed(task.ID, err)
			return d.resultOf(task.ID), err
		}
		loadedSkills[name] = body
	}

	depOutputs := d.dependencyOutputs(task)

	if d.cache != nil {
		key, cached, hit, err := d.cache.lookup(ctx, task, depOutputs)
		if err == nil && hit {
			d.state.MarkRunning(task.ID, "cache")
			d.state.MarkCompleted(task.ID, *cached)
			return d.resultOf(task.ID), nil
		}
		ctx = withCacheKey(ctx, key)
	}

	return d.runWithRetry(ctx, wf, task, loadedSkills, depOutputs)
}

type cacheKeyCtxKey struct{}

func withCacheKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, cacheKeyCtxKey{}, key)
}

func cacheKeyFrom(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(cacheKeyCtxKey{}).(string)
	return key, ok
}

func (d *Dispatcher) dependencyOutputs(task *TaskDefinition) map[string]Output {
	out := make(map[string]Output, len(task.DependsOn))
	for _, dep := range task.DependsOn {
		r := d.state.Result(dep)
		if o, ok := r.Output.(Output); ok {
			out[dep] = o
		}
	}
	return out
}

func (d *Dispatcher) runWithRetry(ctx context.Context, wf *WorkflowDefinition, task *TaskDefinition, skills map[string]string, depOutputs map[string]Output) (TaskResult, error) {
	const op = "Dispatcher.runWithRetry"
	policy := task.Retry

	for attempt := 1; ; attempt++ {
		if d.isCancelled() {
			d.state.MarkCancelled(task.ID)
			return d.resultOf(task.ID), ErrCancelled(op, task.ID)
		}

		workerType, relErr, resolveErr := d.acquireWorker(ctx, task)
		if resolveErr != nil {
			d.state.MarkFailed(task.ID, resolveErr)
			return d.resultOf(task.ID), resolveErr
		}
		if workerType == "" {
			// cancelled while waiting for a slot
			d.state.MarkCancelled(task.ID)
			return d.resultOf(task.ID), ErrCancelled(op, task.ID)
		}

		breaker := d.breakerFor(workerType)
		if !breaker.allow() {
			relErr()
			terminalErr := ErrTaskFailed(op, task.ID, errCircuitOpen)
			if attempt > policy.MaxRetries || !IsRetryable(terminalErr) {
				d.state.MarkFailed(task.ID, terminalErr)
				return d.resultOf(task.ID), terminalErr
			}
			delay := backoffDelay(policy, attempt)
			if d.hooks.OnRetry != nil {
				safeCall(func() { d.hooks.OnRetry(ctx, wf.ID, task.ID, attempt, terminalErr) })
			}
			if sleepErr := d.sleep(ctx, delay); sleepErr != nil {
				d.state.MarkCancelled(task.ID)
				return d.resultOf(task.ID), ErrCancelled(op, task.ID)
			}
			continue
		}

		d.state.MarkRunning(task.ID, workerType)

		worker := d.workerFor(workerType)
		taskCtx, taskCancel := d.withTaskTimeout(ctx, wf, task)
		output, err := d.invokeWorker(taskCtx, worker, task, skills, depOutputs)
		taskCancel()
		relErr()

		breaker.recordResult(err)

		if err == nil {
			if d.cache != nil {
				if key, ok := cacheKeyFrom(ctx); ok {
					_ = d.cache.store(ctx, task, key, output)
				}
			}
			d.state.MarkCompleted(task.ID, output)
			return d.resultOf(task.ID), nil
		}

		terminalErr := classifyFailure(op, task.ID, taskCtx, err)
		if attempt > policy.MaxRetries || !IsRetryable(terminalErr) {
			d.state.MarkFailed(task.ID, terminalErr)
			return d.resultOf(task.ID), terminalErr
		}

		delay := backoffDelay(policy, attempt)
		if d.hooks.OnRetry != nil {
			safeCall(func() { d.hooks.OnRetry(ctx, wf.ID, task.ID, attempt, terminalErr) })
		}
		if sleepErr := d.sleep(ctx, delay); sleepErr != nil {
			d.state.MarkCancelled(task.ID)
			return d.resultOf(task.ID), ErrCancelled(op, task.ID)
		}
	}
}

// acquireWorker resolves a worker type via the Router, cooperatively
// waiting (polling the cancellation signal) when the Router reports
// Waiting. It returns a release function to call once the worker call has
// finished.
func (d *Dispatcher) acquireWorker(ctx context.Context, task *TaskDefinition) (workerType string, release func(), err error) {
	req := router.Request{
		RequiredCapabilities: capabilitiesToStrings(task.RequiredCapability),
		ExplicitWorkerType:   task.WorkerType,
	}

	for {
		res, wt := d.router.Select(req)
		switch res {
		case router.Routed:
			if d.bulkhead != nil && !d.bulkhead.acquire(d.cancel) {
				d.router.Release(wt)
				return "", func() {}, nil
			}
			return wt, func() {
				d.router.Release(wt)
				if d.bulkhead != nil {
					d.bulkhead.release()
				}
			}, nil
		case router.Unroutable:
			return "", func() {}, ErrNoWorkerAvailable("Dispatcher.acquireWorker", task.ID)
		case router.Waiting:
			if d.isCancelled() {
				return "", func() {}, nil
			}
			if err := d.sleep(ctx, 10*time.Millisecond); err != nil {
				return "", func() {}, nil
			}
		}
	}
}

func (d *Dispatcher) breakerFor(workerType string) *circuitBreaker {
	d.breakersMu.Lock()
	defer d.breakersMu.Unlock()
	b, ok := d.breakers[workerType]
	if !ok {
		b = newCircuitBreaker(5, 30*time.Second)
		d.breakers[workerType] = b
	}
	return b
}

func (d *Dispatcher) isCancelled() bool {
	select {
	case <-d.cancel:
		return true
	default:
		return d.state.IsCancelled()
	}
}

func (d *Dispatcher) withTaskTimeout(ctx context.Context, wf *WorkflowDefinition, task *TaskDefinition) (context.Context, context.CancelFunc) {
	timeout := effectiveTimeout(task.TimeoutSeconds, wf.DefaultTimeout)
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func effectiveTimeout(taskTimeout, workflowDefault *float64) time.Duration {
	var seconds float64
	switch {
	case taskTimeout != nil && workflowDefault != nil:
		seconds = minFloat(*taskTimeout, *workflowDefault)
	case taskTimeout != nil:
		seconds = *taskTimeout
	case workflowDefault != nil:
		seconds = *workflowDefault
	default:
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func (d *Dispatcher) invokeWorker(ctx context.Context, w Worker, task *TaskDefinition, skills map[string]string, depOutputs map[string]Output) (out Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()

	type result struct {
		out Output
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("worker panic: %v", r)}
			}
		}()
		o, e := w.Run(ctx, task.Description, task.Parameters, skills, depOutputs)
		done <- result{o, e}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return Output{}, ctx.Err()
	}
}

func (d *Dispatcher) workerFor(workerType string) Worker {
	if w, ok := d.workers[workerType]; ok {
		return w
	}
	return WorkerFunc(func(context.Context, string, map[string]any, map[string]string, map[string]Output) (Output, error) {
		return Output{}, fmt.Errorf("no worker registered for type %q", workerType)
	})
}

func classifyFailure(op, taskID string, ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTaskTimeout(op, taskID)
	}
	return ErrTaskFailed(op, taskID, err)
}

// backoffDelay computes min(initial*backoff^(attempt-1), maxDelay) with
// optional +-25% jitter, per spec.md §4.5.
func backoffDelay(policy RetryPolicy, attempt int) time.Duration {
	base := float64(policy.InitialDelay) * pow(policy.BackoffMultiplier, attempt-1)
	if maxDelay := float64(policy.MaxDelay); maxDelay > 0 && base > maxDelay {
		base = maxDelay
	}
	if !policy.Jitter {
		return time.Duration(base)
	}
	jitter := base * 0.25 * (2*rand.Float64() - 1) // +-25%
	delay := base + jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func pow(base float64, exp int) float64 {
	if exp <= 0 {
		return 1
	}
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

func capabilitiesToStrings(caps []Capability) []string {
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}

func (d *Dispatcher) resultOf(taskID string) TaskResult {
	return toRootResult(d.state.Result(taskID))
}

func toRootStatus(s state.Status) TaskStatus { return TaskStatus(s) }
func toStateStatus(s TaskStatus) state.Status { return state.Status(s) }

func toRootResult(r state.Result) TaskResult {
	out := TaskResult{
		TaskID:      r.TaskID,
		Status:      toRootStatus(r.Status),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		Attempts:    r.Attempts,
		WorkerID:    r.WorkerID,
		SkipReason:  r.SkipReason,
	}
	if o, ok := r.Output.(Output); ok {
		out.Output = &o
	}
	if r.Err != nil {
		out.Error = &StructuredError{Kind: Code(r.Err), Message: r.Err.Error()}
	}
	return out
}
