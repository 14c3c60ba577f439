package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testClock(start time.Time) (func() time.Time, func(time.Duration)) {
	current := start
	now := func() time.Time { return current }
	advance := func(d time.Duration) { current = current.Add(d) }
	return now, advance
}

func failingOp(ctx context.Context) error {
	return NewNetworkError("down", errors.New("refused"))
}

func succeedingOp(ctx context.Context) error {
	return nil
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	now, _ := testClock(time.Unix(0, 0))
	cb := NewCircuitBreaker(3, 30*time.Second).WithClock(now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, failingOp); err == nil {
			t.Fatal("expected failure")
		}
	}

	if cb.State() != BreakerOpen {
		t.Fatalf("state = %s, want OPEN", cb.State())
	}

	err := cb.Execute(ctx, succeedingOp)
	if err == nil {
		t.Fatal("expected fast failure while open")
	}
	if KindOf(err) != KindCircuitOpen {
		t.Errorf("kind = %s, want CIRCUIT_OPEN", KindOf(err))
	}
}

func TestBreakerHalfOpensAfterTimeout(t *testing.T) {
	now, advance := testClock(time.Unix(0, 0))
	cb := NewCircuitBreaker(2, 30*time.Second).WithClock(now)
	ctx := context.Background()

	cb.Execute(ctx, failingOp)
	cb.Execute(ctx, failingOp)
	if cb.State() != BreakerOpen {
		t.Fatalf("state = %s, want OPEN", cb.State())
	}

	advance(31 * time.Second)
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state = %s, want HALF_OPEN after timeout", cb.State())
	}

	// Trial calls pass through while half open.
	if err := cb.Execute(ctx, succeedingOp); err != nil {
		t.Fatalf("trial call failed: %v", err)
	}
}

func TestBreakerClosesAfterThreeTrialSuccesses(t *testing.T) {
	now, advance := testClock(time.Unix(0, 0))
	cb := NewCircuitBreaker(1, 30*time.Second).WithClock(now)
	ctx := context.Background()

	cb.Execute(ctx, failingOp)
	advance(31 * time.Second)

	for i := 0; i < 2; i++ {
		if err := cb.Execute(ctx, succeedingOp); err != nil {
			t.Fatalf("trial %d failed: %v", i, err)
		}
		if cb.State() != BreakerHalfOpen {
			t.Fatalf("state after %d successes = %s, want HALF_OPEN", i+1, cb.State())
		}
	}

	if err := cb.Execute(ctx, succeedingOp); err != nil {
		t.Fatalf("third trial failed: %v", err)
	}
	if cb.State() != BreakerClosed {
		t.Fatalf("state = %s, want CLOSED after three successes", cb.State())
	}
}

func TestBreakerReopensOnTrialFailure(t *testing.T) {
	now, advance := testClock(time.Unix(0, 0))
	cb := NewCircuitBreaker(1, 30*time.Second).WithClock(now)
	ctx := context.Background()

	cb.Execute(ctx, failingOp)
	advance(31 * time.Second)

	// Two successes, then a failure: straight back to OPEN with a fresh timer.
	cb.Execute(ctx, succeedingOp)
	cb.Execute(ctx, succeedingOp)
	cb.Execute(ctx, failingOp)

	if cb.State() != BreakerOpen {
		t.Fatalf("state = %s, want OPEN after trial failure", cb.State())
	}

	advance(29 * time.Second)
	if cb.State() != BreakerOpen {
		t.Fatalf("state = %s, timer should have restarted", cb.State())
	}
	advance(2 * time.Second)
	if cb.State() != BreakerHalfOpen {
		t.Fatalf("state = %s, want HALF_OPEN", cb.State())
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	now, _ := testClock(time.Unix(0, 0))
	cb := NewCircuitBreaker(3, 30*time.Second).WithClock(now)
	ctx := context.Background()

	cb.Execute(ctx, failingOp)
	cb.Execute(ctx, failingOp)
	cb.Execute(ctx, succeedingOp)
	cb.Execute(ctx, failingOp)
	cb.Execute(ctx, failingOp)

	if cb.State() != BreakerClosed {
		t.Fatalf("state = %s, want CLOSED: success should reset the count", cb.State())
	}
}
