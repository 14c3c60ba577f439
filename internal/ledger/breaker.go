package ledger

import (
	"context"
	"sync"
	"time"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// halfOpenSuccessThreshold is the number of consecutive successes required to
// close the breaker again from HALF_OPEN.
const halfOpenSuccessThreshold = 3

// CircuitBreaker isolates the system from a failing external ledger. It is
// process-local state owned by whoever constructs it; there is no package
// singleton, so tests get isolated instances.
type CircuitBreaker struct {
	failureThreshold int
	timeout          time.Duration

	mu                sync.Mutex
	state             BreakerState
	failures          int
	halfOpenSuccesses int
	openedAt          time.Time
	now               func() time.Time
}

func NewCircuitBreaker(failureThreshold int, timeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		timeout:          timeout,
		state:            BreakerClosed,
		now:              time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// State returns the current state, accounting for an elapsed open timeout.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == BreakerOpen && cb.now().Sub(cb.openedAt) >= cb.timeout {
		return BreakerHalfOpen
	}
	return cb.state
}

// Execute runs op under the breaker. While OPEN and inside the timeout it
// fails fast with CIRCUIT_OPEN without invoking op. Otherwise op runs and its
// result is propagated unchanged; state bookkeeping is a side effect, never an
// error transform.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if !cb.allow() {
		return newCircuitOpenError("ledger circuit breaker is open")
	}

	err := op(ctx)
	if err != nil {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return nil
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed, BreakerHalfOpen:
		return true
	case BreakerOpen:
		if cb.now().Sub(cb.openedAt) >= cb.timeout {
			cb.state = BreakerHalfOpen
			cb.halfOpenSuccesses = 0
			return true
		}
		return false
	}
	return true
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerHalfOpen:
		// A trial failure reopens immediately and restarts the timer.
		cb.state = BreakerOpen
		cb.openedAt = cb.now()
		cb.halfOpenSuccesses = 0
		cb.failures = 0
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = BreakerOpen
			cb.openedAt = cb.now()
			cb.failures = 0
		}
	}
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerHalfOpen:
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= halfOpenSuccessThreshold {
			cb.state = BreakerClosed
			cb.halfOpenSuccesses = 0
			cb.failures = 0
		}
	case BreakerClosed:
		cb.failures = 0
	}
}
