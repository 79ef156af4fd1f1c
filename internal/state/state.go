// Package state implements the orchestration core's authoritative state
// manager: the only component allowed to mutate task status, grounded on
// the teacher's internal/scheduler completed-set walk but generalized to
// the full task lifecycle and an append-only event log.
package state

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status mirrors the root package's TaskStatus without importing it, to
// keep this package dependency-free and reusable by the router/dispatcher
// without a cycle; the root package's types are structurally identical
// strings and are converted at the boundary.
type Status string

const (
	Pending   Status = "pending"
	Ready     Status = "ready"
	Running   Status = "running"
	Completed Status = "completed"
	Failed    Status = "failed"
	Skipped   Status = "skipped"
	Cancelled Status = "cancelled"
)

func (s Status) IsTerminal() bool {
	switch s {
	case Completed, Failed, Skipped, Cancelled:
		return true
	default:
		return false
	}
}

// Result is the outcome recorded for a task, independent of the root
// package's richer TaskResult so this package stays import-cycle-free;
// Orchestrator translates between the two at the boundary.
type Result struct {
	TaskID      string
	Status      Status
	StartedAt   time.Time
	CompletedAt time.Time
	Attempts    int
	WorkerID    string
	Output      any
	Err         error
	SkipReason  string
}

// Event is one timestamped transition in the log.
type Event struct {
	ID        string
	Timestamp time.Time
	TaskID    string
	From      Status
	To        Status
	Detail    string
}

// node holds the per-task bookkeeping the manager tracks.
type node struct {
	status    Status
	dependsOn []string
	result    Result
}

// Manager owns the authoritative per-task status map for one workflow run.
// All mutations are serialized through mu; readers receive copies, never
// internal references.
type Manager struct {
	mu        sync.Mutex
	nodes     map[string]*node
	order     []string // declared task order, for stable iteration
	events    []Event
	now       func() time.Time
	cancelled bool
}

// New creates an empty Manager. Call Initialize to seed it with a
// workflow's tasks.
func New() *Manager {
	return &Manager{
		nodes: make(map[string]*node),
		now:   time.Now,
	}
}

// Initialize seeds the manager with task ids and their declared
// dependencies, all starting pending. Must be called once, before any
// other method.
func (m *Manager) Initialize(taskIDs []string, dependsOn map[string][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range taskIDs {
		m.nodes[id] = &node{
			status:    Pending,
			dependsOn: dependsOn[id],
			result:    Result{TaskID: id, Status: Pending},
		}
		m.order = append(m.order, id)
	}
}

// ReadyTasks returns, in declared order, the ids of every pending task
// whose dependencies have all completed.
func (m *Manager) ReadyTasks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ready []string
	for _, id := range m.order {
		n := m.nodes[id]
		if n.status != Pending {
			continue
		}
		if m.allDepsCompletedLocked(n.dependsOn) {
			ready = append(ready, id)
		}
	}
	return ready
}

// ConditionallyReadyTasks returns, in declared order, the ids of every
// pending task whose dependencies have ALL reached a terminal status
// (regardless of which one) — the Conditional strategy's looser readiness
// predicate, since a condition may authorize running despite a skipped or
// failed dependency.
func (m *Manager) ConditionallyReadyTasks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var ready []string
	for _, id := range m.order {
		n := m.nodes[id]
		if n.status != Pending {
			continue
		}
		if m.allDepsTerminalLocked(n.dependsOn) {
			ready = append(ready, id)
		}
	}
	return ready
}

func (m *Manager) allDepsTerminalLocked(deps []string) bool {
	for _, d := range deps {
		dn, ok := m.nodes[d]
		if !ok || !dn.status.IsTerminal() {
			return false
		}
	}
	return true
}

// DepsAllCompleted reports whether every dependency of id has status
// Completed.
func (m *Manager) DepsAllCompleted(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	if !ok {
		return false
	}
	return m.allDepsCompletedLocked(n.dependsOn)
}

// IsCompleted reports whether id's current status is Completed, the
// predicate the condition grammar's bare-id atom evaluates.
func (m *Manager) IsCompleted(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[id]
	return ok && n.status == Completed
}

func (m *Manager) allDepsCompletedLocked(deps []string) bool {
	for _, d := range deps {
		dn, ok := m.nodes[d]
		if !ok || dn.status != Completed {
			return false
		}
	}
	return true
}

// SkipDependents marks, transitively, every pending/ready task that depends
// (directly or indirectly) on a task that ended in a non-completed terminal
// status, with the given reason. It returns the ids it skipped.
func (m *Manager) SkipDependents(reason string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var skipped []string
	changed := true
	for changed {
		changed = false
		for _, id := range m.order {
			n := m.nodes[id]
			if n.status != Pending && n.status != Ready {
				continue
			}
			for _, d := range n.dependsOn {
				dn := m.nodes[d]
				if dn.status.IsTerminal() && dn.status != Completed {
					n.result.SkipReason = reason
					n.result.CompletedAt = m.now()
					m.transitionLocked(id, Skipped, reason)
					skipped = append(skipped, id)
					changed = true
					break
				}
			}
		}
	}
	return skipped
}

// SkipRemaining marks every currently pending or ready task as skipped with reason,
// used when a strategy halts scheduling (continue-on-failure is false and
// a task ended non-completed). It returns the ids it skipped.
func (m *Manager) SkipRemaining(reason string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var skipped []string
	for _, id := range m.order {
		n := m.nodes[id]
		if n.status == Pending || n.status == Ready {
			n.result.SkipReason = reason
			n.result.CompletedAt = m.now()
			m.transitionLocked(id, Skipped, reason)
			skipped = append(skipped, id)
		}
	}
	return skipped
}

// MarkRunning transitions id to running and records the attempt's worker id
// and start time.
func (m *Manager) MarkRunning(id, workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.nodes[id]
	n.result.Attempts++
	n.result.WorkerID = workerID
	if n.result.StartedAt.IsZero() {
		n.result.StartedAt = m.now()
	}
	m.transitionLocked(id, Running, "")
}

// MarkCompleted transitions id to completed and stores its output.
func (m *Manager) MarkCompleted(id string, output any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.nodes[id]
	n.result.Output = output
	n.result.CompletedAt = m.now()
	m.transitionLocked(id, Completed, "")
}

// MarkFailed transitions id to failed and records err.
func (m *Manager) MarkFailed(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.nodes[id]
	n.result.Err = err
	n.result.CompletedAt = m.now()
	m.transitionLocked(id, Failed, err.Error())
}

// MarkSkipped transitions id to skipped with reason.
func (m *Manager) MarkSkipped(id, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.nodes[id]
	n.result.SkipReason = reason
	n.result.CompletedAt = m.now()
	m.transitionLocked(id, Skipped, reason)
}

// MarkCancelled transitions id to cancelled.
func (m *Manager) MarkCancelled(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.nodes[id]
	n.result.CompletedAt = m.now()
	m.transitionLocked(id, Cancelled, "cancelled")
}

// transitionLocked performs the status change and appends an event. Must
// be called with mu held.
func (m *Manager) transitionLocked(id string, to Status, detail string) {
	n, ok := m.nodes[id]
	if !ok {
		return
	}
	from := n.status
	n.status = to
	n.result.Status = to
	m.events = append(m.events, Event{
		ID:        uuid.NewString(),
		Timestamp: m.now(),
		TaskID:    id,
		From:      from,
		To:        to,
		Detail:    detail,
	})
}

// SetCancelled flips the cooperative cancellation flag observed by
// IsCancelled. Idempotent.
func (m *Manager) SetCancelled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = true
}

// IsCancelled reports whether the workflow's cancellation flag is set.
func (m *Manager) IsCancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

// Status returns the current status of id.
func (m *Manager) Status(id string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		return n.status
	}
	return ""
}

// Result returns a copy of the current Result for id.
func (m *Manager) Result(id string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		return n.result
	}
	return Result{}
}

// Snapshot returns a read-only copy of every task's status and a copy of
// the event log, safe to hand to callers outside the lock.
func (m *Manager) Snapshot() (statuses map[string]Status, results map[string]Result, events []Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses = make(map[string]Status, len(m.nodes))
	results = make(map[string]Result, len(m.nodes))
	for id, n := range m.nodes {
		statuses[id] = n.status
		results[id] = n.result
	}
	events = make([]Event, len(m.events))
	copy(events, m.events)
	return statuses, results, events
}

// AllTerminal reports whether every task has reached a terminal status.
func (m *Manager) AllTerminal() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.nodes {
		if !n.status.IsTerminal() {
			return false
		}
	}
	return true
}

// AnyRunning reports whether at least one task is currently running.
func (m *Manager) AnyRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.nodes {
		if n.status == Running {
			return true
		}
	}
	return false
}

// Progress returns counts by status and a completion percentage over the
// terminal statuses.
func (m *Manager) Progress() (total int, byStatus map[Status]int, percentDone float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byStatus = make(map[Status]int)
	terminal := 0
	for _, n := range m.nodes {
		byStatus[n.status]++
		if n.status.IsTerminal() {
			terminal++
		}
	}
	total = len(m.nodes)
	if total > 0 {
		percentDone = 100 * float64(terminal) / float64(total)
	}
	return total, byStatus, percentDone
}
