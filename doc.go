// Package orchestrator implements a dependency-aware task scheduler for
// multi-agent workflows: submit a Workflow Definition (a DAG of tasks with
// capability requirements, retry policies and optional boolean conditions),
// pick or let the engine recommend an execution strategy, and the
// Orchestrator drives it to completion against a pool of pluggable workers.
//
// # Execution strategies
//
// Four strategies share one Dispatcher:
//
//   - Sequential runs one ready task at a time, in priority/declared order.
//   - Parallel fans every task out at once, bounded by MaxParallelTasks;
//     it forbids dependencies between tasks.
//   - DAG dispatches the whole ready set at each step, up to
//     MaxParallelTasks concurrently, recomputing readiness as tasks finish.
//   - Conditional layers a boolean condition grammar (AND/OR/NOT over task
//     ids) on top of DAG-style scheduling, so a task can run despite a
//     failed or skipped dependency, or be skipped despite a completed one.
//
// Recommend(wf) inspects a Workflow Definition's shape and picks the
// strategy best suited to it.
//
// # Routing, retry and caching
//
// The Router matches a task's required capabilities against registered
// WorkerRoutings, respecting per-worker-type concurrency caps and priority.
// A failed attempt is retried with exponential backoff and jitter up to the
// task's RetryPolicy, unless its error is non-retryable (validation,
// missing skill, cancellation). An optional result cache ("none", "memory",
// "disk" or "hybrid") can skip re-running a task whose inputs are unchanged.
//
// # Usage
//
//	o, err := orchestrator.New(orchestrator.Config{
//	    Workers: []orchestrator.WorkerRouting{
//	        {WorkerType: "coder", Capabilities: []orchestrator.Capability{orchestrator.CapabilityCodeGeneration}, Worker: myWorker},
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	state, err := o.ExecuteWorkflow(ctx, &wf, orchestrator.ExecuteOptions{AutoStrategy: true})
package orchestrator
