package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// taskRecord is one completed task execution, as kept by the in-memory
// Metrics Collector required by spec.md §4.4.
type taskRecord struct {
	WorkflowID string
	TaskID     string
	Status     TaskStatus
	Duration   time.Duration
	StartedAt  time.Time
	EndedAt    time.Time
	Retries    int
	WorkerID   string
	Error      string
}

// WorkflowMetrics aggregates one workflow's task records.
type WorkflowMetrics struct {
	WorkflowID    string
	TotalTasks    int
	ByStatus      map[TaskStatus]int
	AverageDuration time.Duration
	SlowestTask   string
	FastestTask   string
	SuccessRate   float64 // percent
	RetryRate     float64 // retries per task
	WallTime      time.Duration
}

// AggregateStats summarizes every workflow the collector has observed.
type AggregateStats struct {
	WorkflowCount       int
	AverageSuccessRate  float64
	AverageDuration     time.Duration
}

// Metrics is the orchestration core's metrics collector: it keeps the
// append-only in-memory task records spec.md §4.4 requires and mirrors
// each event into OpenTelemetry instruments, following the teacher's
// metrics.go shape (typed instruments built once, a tracer for
// span-per-operation, nil-receiver-safe Record* methods).
type Metrics struct {
	mu      sync.Mutex
	records []taskRecord

	taskExecutions metric.Int64Counter
	taskDuration   metric.Float64Histogram
	taskRetries    metric.Int64Counter
	taskErrors     metric.Int64Counter
	activeTasks    metric.Int64UpDownCounter

	workflowExecutions metric.Int64Counter
	workflowDuration   metric.Float64Histogram
	workflowErrors     metric.Int64Counter
	activeWorkflows    metric.Int64UpDownCounter

	tracer trace.Tracer
}

// NewMetrics builds a Metrics instance backed by meter and tracer.
// Returns an error if any instrument fails to register, mirroring the
// teacher's NewMetrics(meter, tracer) constructor.
func NewMetrics(meter metric.Meter, tracer trace.Tracer) (*Metrics, error) {
	m := &Metrics{tracer: tracer}
	var err error

	if m.taskExecutions, err = meter.Int64Counter(
		"orchestrator_task_executions_total",
		metric.WithDescription("Total number of task executions"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}
	if m.taskDuration, err = meter.Float64Histogram(
		"orchestrator_task_duration_seconds",
		metric.WithDescription("Duration of task executions"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.taskRetries, err = meter.Int64Counter(
		"orchestrator_task_retries_total",
		metric.WithDescription("Total number of task retry attempts"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}
	if m.taskErrors, err = meter.Int64Counter(
		"orchestrator_task_errors_total",
		metric.WithDescription("Total number of task execution errors"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}
	if m.activeTasks, err = meter.Int64UpDownCounter(
		"orchestrator_active_tasks",
		metric.WithDescription("Number of currently running tasks"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}
	if m.workflowExecutions, err = meter.Int64Counter(
		"orchestrator_workflow_executions_total",
		metric.WithDescription("Total number of workflow executions"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}
	if m.workflowDuration, err = meter.Float64Histogram(
		"orchestrator_workflow_duration_seconds",
		metric.WithDescription("Duration of workflow executions"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	if m.workflowErrors, err = meter.Int64Counter(
		"orchestrator_workflow_errors_total",
		metric.WithDescription("Total number of workflow execution errors"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}
	if m.activeWorkflows, err = meter.Int64UpDownCounter(
		"orchestrator_active_workflows",
		metric.WithDescription("Number of currently active workflows"),
		metric.WithUnit("1"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// NoOpMetrics returns a Metrics whose OTel instruments are all nil; every
// Record*/Start*Span method on it is safe to call and emits no OTel data,
// so the engine never has to special-case "metrics disabled". The
// in-memory records behind Report and Aggregate are still kept.
func NoOpMetrics() *Metrics {
	return &Metrics{}
}

var (
	globalMetrics     *Metrics
	globalMetricsOnce sync.Once
)

// InitMetrics builds and installs the process-wide Metrics instance once.
// Subsequent calls are no-ops.
func InitMetrics(meter metric.Meter, tracer trace.Tracer) error {
	var err error
	globalMetricsOnce.Do(func() {
		globalMetrics, err = NewMetrics(meter, tracer)
	})
	return err
}

// GetMetrics returns the process-wide Metrics instance, falling back to
// NoOpMetrics() if InitMetrics was never called.
func GetMetrics() *Metrics {
	if globalMetrics == nil {
		return NoOpMetrics()
	}
	return globalMetrics
}

// RecordTask appends a task execution record and mirrors it into the OTel
// instruments.
func (m *Metrics) RecordTask(ctx context.Context, rec taskRecord) {
	if m == nil {
		return
	}

	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()

	attrs := []attribute.KeyValue{
		attribute.String("task_id", rec.TaskID),
		attribute.String("status", string(rec.Status)),
	}
	if m.taskExecutions != nil {
		m.taskExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.taskDuration != nil {
		m.taskDuration.Record(ctx, rec.Duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if rec.Retries > 0 && m.taskRetries != nil {
		m.taskRetries.Add(ctx, int64(rec.Retries), metric.WithAttributes(attrs...))
	}
	if rec.Status != StatusCompleted && m.taskErrors != nil {
		m.taskErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordTaskActive records a delta in the number of currently running
// tasks.
func (m *Metrics) RecordTaskActive(ctx context.Context, delta int64) {
	if m == nil || m.activeTasks == nil {
		return
	}
	m.activeTasks.Add(ctx, delta)
}

// RecordWorkflow records a completed workflow's aggregate outcome.
func (m *Metrics) RecordWorkflow(ctx context.Context, workflowID string, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("workflow_id", workflowID),
		attribute.Bool("success", success),
	}
	if m.workflowExecutions != nil {
		m.workflowExecutions.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.workflowDuration != nil {
		m.workflowDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if !success && m.workflowErrors != nil {
		m.workflowErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordWorkflowActive records a delta in the number of active workflows.
func (m *Metrics) RecordWorkflowActive(ctx context.Context, delta int64) {
	if m == nil || m.activeWorkflows == nil {
		return
	}
	m.activeWorkflows.Add(ctx, delta)
}

// StartTaskSpan starts a span for a task-scoped operation.
//
//nolint:spancheck // span lifecycle is managed by the caller
func (m *Metrics) StartTaskSpan(ctx context.Context, taskID, operation string) (context.Context, trace.Span) {
	if m == nil || m.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return m.tracer.Start(ctx, "orchestrator.task."+operation, trace.WithAttributes(
		attribute.String("task.id", taskID),
	))
}

// StartWorkflowSpan starts a span for a workflow-scoped operation.
//
//nolint:spancheck // span lifecycle is managed by the caller
func (m *Metrics) StartWorkflowSpan(ctx context.Context, workflowID, operation string) (context.Context, trace.Span) {
	if m == nil || m.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return m.tracer.Start(ctx, "orchestrator.workflow."+operation, trace.WithAttributes(
		attribute.String("workflow.id", workflowID),
	))
}

// WorkflowReport computes the per-workflow aggregate spec.md §4.4 requires.
func (m *Metrics) WorkflowReport(workflowID string) WorkflowMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := WorkflowMetrics{WorkflowID: workflowID, ByStatus: map[TaskStatus]int{}}
	var total time.Duration
	var slowest, fastest *taskRecord
	var minStart, maxEnd time.Time
	var completed, retries int

	for i := range m.records {
		r := &m.records[i]
		if r.WorkflowID != workflowID {
			continue
		}
		out.TotalTasks++
		out.ByStatus[r.Status]++
		total += r.Duration
		retries += r.Retries
		if r.Status == StatusCompleted {
			completed++
		}
		if slowest == nil || r.Duration > slowest.Duration {
			slowest = r
		}
		if fastest == nil || r.Duration < fastest.Duration {
			fastest = r
		}
		if minStart.IsZero() || r.StartedAt.Before(minStart) {
			minStart = r.StartedAt
		}
		if r.EndedAt.After(maxEnd) {
			maxEnd = r.EndedAt
		}
	}

	if out.TotalTasks > 0 {
		out.AverageDuration = total / time.Duration(out.TotalTasks)
		out.SuccessRate = 100 * float64(completed) / float64(out.TotalTasks)
		out.RetryRate = float64(retries) / float64(out.TotalTasks)
	}
	if slowest != nil {
		out.SlowestTask = slowest.TaskID
	}
	if fastest != nil {
		out.FastestTask = fastest.TaskID
	}
	if !minStart.IsZero() && !maxEnd.IsZero() {
		out.WallTime = maxEnd.Sub(minStart)
	}
	return out
}

// Aggregate summarizes every workflow observed so far.
func (m *Metrics) Aggregate() AggregateStats {
	m.mu.Lock()
	workflowIDs := make(map[string]bool)
	for _, r := range m.records {
		workflowIDs[r.WorkflowID] = true
	}
	m.mu.Unlock()

	var totalRate float64
	var totalDuration time.Duration
	for id := range workflowIDs {
		wm := m.WorkflowReport(id)
		totalRate += wm.SuccessRate
		totalDuration += wm.AverageDuration
	}

	n := len(workflowIDs)
	out := AggregateStats{WorkflowCount: n}
	if n > 0 {
		out.AverageSuccessRate = totalRate / float64(n)
		out.AverageDuration = totalDuration / time.Duration(n)
	}
	return out
}

// Report renders a human-readable multi-line report for one workflow, as
// required by spec.md §4.4.
func (m *Metrics) Report(workflowID string) string {
	wm := m.WorkflowReport(workflowID)

	var b strings.Builder
	fmt.Fprintf(&b, "Workflow %s\n", workflowID)
	fmt.Fprintf(&b, "  tasks:        %d\n", wm.TotalTasks)

	statuses := make([]string, 0, len(wm.ByStatus))
	for s := range wm.ByStatus {
		statuses = append(statuses, string(s))
	}
	sort.Strings(statuses)
	for _, s := range statuses {
		fmt.Fprintf(&b, "    %-10s %d\n", s, wm.ByStatus[TaskStatus(s)])
	}

	fmt.Fprintf(&b, "  success rate: %.1f%%\n", wm.SuccessRate)
	fmt.Fprintf(&b, "  retry rate:   %.2f/task\n", wm.RetryRate)
	fmt.Fprintf(&b, "  avg duration: %s\n", wm.AverageDuration)
	fmt.Fprintf(&b, "  slowest task: %s\n", orEmpty(wm.SlowestTask))
	fmt.Fprintf(&b, "  fastest task: %s\n", orEmpty(wm.FastestTask))
	fmt.Fprintf(&b, "  wall time:    %s\n", wm.WallTime)
	return b.String()
}

func orEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// defaultMeter and defaultTracer mirror the teacher's package-level
// otel.Meter/otel.Tracer accessors.
var (
	defaultMeter  = otel.Meter("github.com/taskflow-engine/orchestrator")
	defaultTracer = otel.Tracer("github.com/taskflow-engine/orchestrator")
)
