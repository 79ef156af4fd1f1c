// Package router implements worker selection: given a task's required
// capabilities and optional explicit worker type, pick a worker routing
// honoring priority and per-worker-type concurrency budgets. Grounded on
// the teacher's orchestration/router.go classifier-then-fallback shape,
// adapted from "classify an input" to "select a worker for a task".
package router

import (
	"fmt"
	"sort"
	"sync"
)

// Resolution is the outcome of Select.
type Resolution int

const (
	// Routed means Select returned the chosen worker type and its slot has
	// been acquired.
	Routed Resolution = iota
	// Waiting means no candidate is free right now, but at least one
	// routing could eventually satisfy the request once a slot frees.
	Waiting
	// Unroutable means no routing could ever satisfy the request.
	Unroutable
)

// Routing is one registered worker type.
type Routing struct {
	WorkerType         string
	Capabilities       map[string]bool
	Priority           int
	MaxConcurrentTasks int
}

// Request describes a task's routing requirements.
type Request struct {
	RequiredCapabilities []string
	ExplicitWorkerType   string
}

// Router holds the configured worker routings and their live in-flight
// counters.
type Router struct {
	mu       sync.Mutex
	routings []Routing
	inFlight map[string]int
}

// New creates a Router configured with the given routings.
func New(routings []Routing) *Router {
	r := &Router{
		routings: routings,
		inFlight: make(map[string]int, len(routings)),
	}
	for _, rt := range routings {
		r.inFlight[rt.WorkerType] = 0
	}
	return r
}

// Select runs the selection algorithm for req. On Routed, the returned
// worker type's slot has already been acquired; the caller must call
// Release(workerType) exactly once regardless of outcome.
func (r *Router) Select(req Request) (Resolution, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	candidates := r.filterLocked(req)
	if len(candidates) == 0 {
		if r.couldEverMatchLocked(req) {
			return Waiting, ""
		}
		return Unroutable, ""
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority // descending priority
		}
		loadA, loadB := r.inFlight[a.WorkerType], r.inFlight[b.WorkerType]
		if loadA != loadB {
			return loadA < loadB // ascending load
		}
		return a.WorkerType < b.WorkerType // ascending id
	})

	chosen := candidates[0].WorkerType
	r.inFlight[chosen]++
	return Routed, chosen
}

// filterLocked returns routings eligible for req that are below their
// concurrency cap. Must be called with mu held.
func (r *Router) filterLocked(req Request) []Routing {
	var out []Routing
	for _, rt := range r.eligibleLocked(req) {
		if rt.MaxConcurrentTasks <= 0 || r.inFlight[rt.WorkerType] < rt.MaxConcurrentTasks {
			out = append(out, rt)
		}
	}
	return out
}

// eligibleLocked returns routings matching req's type/capability
// constraints, ignoring concurrency caps.
func (r *Router) eligibleLocked(req Request) []Routing {
	var out []Routing
	for _, rt := range r.routings {
		if req.ExplicitWorkerType != "" {
			if rt.WorkerType == req.ExplicitWorkerType {
				out = append(out, rt)
			}
			continue
		}
		if hasAllCapabilities(rt.Capabilities, req.RequiredCapabilities) {
			out = append(out, rt)
		}
	}
	return out
}

func (r *Router) couldEverMatchLocked(req Request) bool {
	return len(r.eligibleLocked(req)) > 0
}

func hasAllCapabilities(have map[string]bool, want []string) bool {
	for _, w := range want {
		if !have[w] {
			return false
		}
	}
	return true
}

// Release returns a previously acquired slot for workerType.
func (r *Router) Release(workerType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[workerType] > 0 {
		r.inFlight[workerType]--
	}
}

// Load returns the current in-flight count for workerType.
func (r *Router) Load(workerType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight[workerType]
}

// TotalCapacity sums MaxConcurrentTasks across all routings; a zero cap in
// any routing means unbounded and makes the sum meaningless, reported as
// -1 in that case.
func (r *Router) TotalCapacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := 0
	for _, rt := range r.routings {
		if rt.MaxConcurrentTasks <= 0 {
			return -1
		}
		total += rt.MaxConcurrentTasks
	}
	return total
}

// String implements fmt.Stringer for debugging/log output.
func (rt Routing) String() string {
	return fmt.Sprintf("%s(priority=%d,max=%d)", rt.WorkerType, rt.Priority, rt.MaxConcurrentTasks)
}
