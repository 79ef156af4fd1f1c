package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskflow-engine/orchestrator/internal/router"
	"github.com/taskflow-engine/orchestrator/internal/state"
)

// Config assembles everything an Orchestrator needs: the worker routings it
// dispatches to, the skill registry tasks may require, the result cache's
// configuration, and the OTel meter/tracer its Metrics mirrors into.
// Grounded on the teacher's orchestration/orchestrator.go functional-option
// constructor, collapsed into a single struct since this engine has no
// registry of named orchestrator instances to distinguish by option.
type Config struct {
	Workers            []WorkerRouting
	Skills             SkillRegistry
	Cache              CacheConfig
	MaxConcurrentTasks int
	Meter              metric.Meter
	Tracer             trace.Tracer
	Hooks              Hooks
}

// DefaultConfig returns a Config with caching disabled and metrics wired to
// the process-wide default meter/tracer.
func DefaultConfig() Config {
	return Config{
		Cache:  DefaultCacheConfig(),
		Meter:  defaultMeter,
		Tracer: defaultTracer,
	}
}

// run is the bookkeeping kept for one workflow execution, queryable after it
// finishes.
type run struct {
	wf        *WorkflowDefinition
	sm        *state.Manager
	status    WorkflowStatus
	startedAt time.Time
	endedAt   time.Time
	cancel    chan struct{}
}

// Orchestrator is the facade spec.md §4.7 describes: it owns the Router,
// State Manager factory, result cache and Metrics, and exposes workflow
// execution plus introspection over past and in-flight runs. Grounded on
// the teacher's pkg/orchestration/orchestrator.go (construction, active-run
// tracking under a mutex, tracer span per call) and registry.go (the
// strategy/worker lookup pattern strategy.go's strategyRegistry mirrors).
type Orchestrator struct {
	mu      sync.Mutex
	runs    map[string]*run
	workers map[string]Worker
	router  *router.Router
	skills  SkillRegistry
	cache   *resultCache
	metrics *Metrics
	hooks   Hooks
	maxConc int
}

// New constructs an Orchestrator from cfg.
func New(cfg Config) (*Orchestrator, error) {
	workers := make(map[string]Worker, len(cfg.Workers))
	routings := make([]router.Routing, 0, len(cfg.Workers))
	for _, wr := range cfg.Workers {
		if wr.Worker == nil {
			return nil, fmt.Errorf("orchestrator: worker routing %q has a nil Worker", wr.WorkerType)
		}
		workers[wr.WorkerType] = wr.Worker
		caps := make(map[string]bool, len(wr.Capabilities))
		for _, c := range wr.Capabilities {
			caps[string(c)] = true
		}
		routings = append(routings, router.Routing{
			WorkerType:         wr.WorkerType,
			Capabilities:       caps,
			Priority:           wr.Priority,
			MaxConcurrentTasks: wr.MaxConcurrentTasks,
		})
	}

	skills := cfg.Skills
	if skills == nil {
		skills = MapSkillRegistry{}
	}

	cache, err := newResultCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: cache: %w", err)
	}
	if cfg.Cache.Strategy == "" || cfg.Cache.Strategy == "none" {
		cache = nil
	}

	meter, tracer := cfg.Meter, cfg.Tracer
	if meter == nil {
		meter = defaultMeter
	}
	if tracer == nil {
		tracer = defaultTracer
	}
	metrics, err := NewMetrics(meter, tracer)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: metrics: %w", err)
	}

	return &Orchestrator{
		runs:    make(map[string]*run),
		workers: workers,
		router:  router.New(routings),
		skills:  skills,
		cache:   cache,
		metrics: metrics,
		hooks:   cfg.Hooks,
		maxConc: cfg.MaxConcurrentTasks,
	}, nil
}

// ExecuteOptions controls one ExecuteWorkflow call.
type ExecuteOptions struct {
	// AutoStrategy overrides wf.Strategy with Recommend(wf)'s choice,
	// ignoring whatever the caller set.
	AutoStrategy bool
	// Hooks are composed with the Orchestrator's own hooks for this call
	// only.
	Hooks Hooks
}

// ExecuteWorkflow validates wf, resolves its execution strategy, and drives
// it to completion (or cancellation), returning the final WorkflowState.
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, wf *WorkflowDefinition, opts ExecuteOptions) (WorkflowState, error) {
	const op = "Orchestrator.ExecuteWorkflow"

	strategyName := wf.Strategy
	if opts.AutoStrategy || strategyName == "" || strategyName == StrategyAuto {
		strategyName = Recommend(wf).Strategy
	}
	validated := *wf
	validated.Strategy = strategyName
	if err := ValidateWorkflow(&validated); err != nil {
		return WorkflowState{}, err
	}

	strategy, ok := newStrategy(strategyName)
	if !ok {
		return WorkflowState{}, ErrValidation(op, fmt.Errorf("unknown strategy %q", strategyName))
	}

	sm := state.New()
	tasks := make(map[string]*TaskDefinition, len(validated.Tasks))
	taskIDs := make([]string, 0, len(validated.Tasks))
	dependsOn := make(map[string][]string, len(validated.Tasks))
	for i := range validated.Tasks {
		t := &validated.Tasks[i]
		tasks[t.ID] = t
		taskIDs = append(taskIDs, t.ID)
		dependsOn[t.ID] = t.DependsOn
	}
	sm.Initialize(taskIDs, dependsOn)

	hooks := ComposeHooks(o.hooks, opts.Hooks)
	cancel := make(chan struct{})
	r := &run{wf: &validated, sm: sm, status: WorkflowRunning, startedAt: time.Now(), cancel: cancel}

	o.mu.Lock()
	o.runs[validated.ID] = r
	o.mu.Unlock()

	o.metrics.RecordWorkflowActive(ctx, 1)
	defer o.metrics.RecordWorkflowActive(ctx, -1)
	ctx, span := o.metrics.StartWorkflowSpan(ctx, validated.ID, "execute")
	defer span.End()

	if hooks.OnWorkflowStart != nil {
		safeCall(func() { hooks.OnWorkflowStart(ctx, validated.ID, &validated) })
	}

	dispatcher := newDispatcher(sm, o.router, o.workers, o.cache, o.metrics, o.skills, hooks, cancel, o.maxConc)
	runner := ApplyMiddleware(TaskRunner(dispatcher), WithHooks(hooks), WithTracing(o.metrics))

	env := &execEnv{wf: &validated, tasks: tasks, runner: runner, sm: sm}
	runErr := strategy.Run(ctx, env)

	r.endedAt = time.Now()
	finalState := o.snapshot(&validated, r)

	success := finalState.Status == WorkflowCompleted
	o.metrics.RecordWorkflow(ctx, validated.ID, r.endedAt.Sub(r.startedAt), success)

	o.mu.Lock()
	r.status = finalState.Status
	o.mu.Unlock()

	if runErr != nil {
		span.RecordError(runErr)
		if hooks.OnWorkflowFail != nil {
			safeCall(func() { hooks.OnWorkflowFail(ctx, validated.ID, runErr) })
		}
		return finalState, runErr
	}
	if hooks.OnWorkflowComplete != nil {
		safeCall(func() { hooks.OnWorkflowComplete(ctx, validated.ID, finalState) })
	}
	return finalState, nil
}

// ExecuteTask runs a single task outside any workflow, a convenience for ad
// hoc invocations that still benefit from routing, retry and caching.
func (o *Orchestrator) ExecuteTask(ctx context.Context, task TaskDefinition) (TaskResult, error) {
	wf := &WorkflowDefinition{
		ID:               "adhoc-" + task.ID,
		Name:             "ad hoc task",
		Tasks:            []TaskDefinition{task},
		Strategy:         StrategySequential,
		MaxParallelTasks: 1,
	}
	wfState, err := o.ExecuteWorkflow(ctx, wf, ExecuteOptions{})
	if err != nil {
		return TaskResult{}, err
	}
	return wfState.Results[task.ID], nil
}

func (o *Orchestrator) snapshot(wf *WorkflowDefinition, r *run) WorkflowState {
	statuses, results, events := r.sm.Snapshot()

	rootStatuses := make(map[string]TaskStatus, len(statuses))
	rootResults := make(map[string]TaskResult, len(results))
	anyNonCompleted := false
	for id, s := range statuses {
		rootStatuses[id] = toRootStatus(s)
		if s.IsTerminal() && s != state.Completed {
			anyNonCompleted = true
		}
	}
	for id, res := range results {
		rootResults[id] = toRootResult(res)
	}

	rootEvents := make([]Event, len(events))
	for i, e := range events {
		rootEvents[i] = Event{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			TaskID:    e.TaskID,
			From:      toRootStatus(e.From),
			To:        toRootStatus(e.To),
			Detail:    e.Detail,
		}
	}

	status := WorkflowCompleted
	if r.sm.IsCancelled() {
		status = WorkflowCancelled
	} else if !wf.ContinueOnFailure && anyNonCompleted {
		status = WorkflowFailed
	}

	return WorkflowState{
		WorkflowID: wf.ID,
		Status:     status,
		Tasks:      rootStatuses,
		Results:    rootResults,
		Events:     rootEvents,
		StartedAt:  r.startedAt,
		EndedAt:    r.endedAt,
	}
}

// GetWorkflowState returns the current (or final) state of workflowID, and
// false if no run with that id is known.
func (o *Orchestrator) GetWorkflowState(workflowID string) (WorkflowState, bool) {
	o.mu.Lock()
	r, ok := o.runs[workflowID]
	o.mu.Unlock()
	if !ok {
		return WorkflowState{}, false
	}
	return o.snapshot(r.wf, r), true
}

// GetWorkflowProgress returns the task-count progress for workflowID.
func (o *Orchestrator) GetWorkflowProgress(workflowID string) (Progress, bool) {
	o.mu.Lock()
	r, ok := o.runs[workflowID]
	o.mu.Unlock()
	if !ok {
		return Progress{}, false
	}
	total, byStatus, percent := r.sm.Progress()
	out := Progress{Total: total, PercentDone: percent, ByStatus: make(map[TaskStatus]int, len(byStatus))}
	for s, n := range byStatus {
		out.ByStatus[toRootStatus(s)] = n
	}
	return out, true
}

// GetWorkflowMetrics returns the Metrics Collector's aggregate report for
// workflowID.
func (o *Orchestrator) GetWorkflowMetrics(workflowID string) WorkflowMetrics {
	return o.metrics.WorkflowReport(workflowID)
}

// GetAggregateStats returns the Metrics Collector's summary across every
// workflow observed so far.
func (o *Orchestrator) GetAggregateStats() AggregateStats {
	return o.metrics.Aggregate()
}

// CancelWorkflow requests cooperative cancellation of workflowID. Tasks
// already running are allowed to finish their current attempt; no new
// attempt or dispatch is started afterward.
func (o *Orchestrator) CancelWorkflow(workflowID string) bool {
	o.mu.Lock()
	r, ok := o.runs[workflowID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	r.sm.SetCancelled()
	select {
	case <-r.cancel:
	default:
		close(r.cancel)
	}
	return true
}

// GetCacheStats reports the result cache's hit/miss/eviction counters, or
// zero counters with Strategy "none" if caching is disabled.
func (o *Orchestrator) GetCacheStats() CacheStats {
	if o.cache == nil {
		return CacheStats{Strategy: "none"}
	}
	return o.cache.stats()
}

// InvalidateCache removes every cache entry derived from taskID.
func (o *Orchestrator) InvalidateCache(ctx context.Context, taskID string) error {
	if o.cache == nil {
		return nil
	}
	return o.cache.invalidate(ctx, taskID)
}

// ClearCache empties the result cache entirely.
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	if o.cache == nil {
		return nil
	}
	return o.cache.clear(ctx)
}
