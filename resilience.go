package orchestrator

import (
	"fmt"
	"sync"
	"time"
)

// circuitState mirrors the teacher's CircuitBreaker states.
type circuitState int

const (
	circuitClosed circuitState = iota
	circuitOpen
	circuitHalfOpen
)

// circuitBreaker is a resilience layer around a per-worker-type routing;
// the Dispatcher always keeps one per worker type (threshold 5, reset 30s).
// After failureThreshold consecutive failures it
// opens and short-circuits further calls until resetTimeout has elapsed.
// Grounded on the teacher's internal/scheduler/retry.go CircuitBreaker;
// supplementary to (never a substitute for) the Router's own concurrency
// caps.
type circuitBreaker struct {
	mu               sync.Mutex
	failureThreshold int
	resetTimeout     time.Duration
	failureCount     int
	lastFailure      time.Time
	state            circuitState
	now              func() time.Time
}

func newCircuitBreaker(failureThreshold int, resetTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		now:              time.Now,
	}
}

// allow reports whether a call may proceed, transitioning open->half-open
// once resetTimeout has elapsed.
func (b *circuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case circuitOpen:
		if b.now().Sub(b.lastFailure) < b.resetTimeout {
			return false
		}
		b.state = circuitHalfOpen
		return true
	default:
		return true
	}
}

func (b *circuitBreaker) recordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.state = circuitClosed
		b.failureCount = 0
		return
	}
	b.failureCount++
	b.lastFailure = b.now()
	if b.failureCount >= b.failureThreshold || b.state == circuitHalfOpen {
		b.state = circuitOpen
	}
}

var errCircuitOpen = fmt.Errorf("circuit breaker is open")

// bulkhead caps the number of concurrent dispatcher operations above and
// beyond the router's own per-worker-type caps, grounded on the teacher's
// Bulkhead.
type bulkhead struct {
	sem chan struct{}
}

func newBulkhead(capacity int) *bulkhead {
	return &bulkhead{sem: make(chan struct{}, capacity)}
}

func (b *bulkhead) acquire(done <-chan struct{}) bool {
	select {
	case b.sem <- struct{}{}:
		return true
	case <-done:
		return false
	}
}

func (b *bulkhead) release() {
	select {
	case <-b.sem:
	default:
	}
}
