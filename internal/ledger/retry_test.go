package ledger

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond, 10*time.Millisecond, 2.0).WithSeed(1)

	attempts := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return NewNetworkError("flaky", errors.New("connection reset"))
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryExhaustionWrapsLastError(t *testing.T) {
	policy := NewRetryPolicy(3, time.Millisecond, 10*time.Millisecond, 2.0).WithSeed(1)

	attempts := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return NewNetworkError("down", errors.New("timeout"))
	})

	if err == nil {
		t.Fatal("expected error after exhaustion")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if KindOf(err) != KindNetwork {
		t.Errorf("kind = %s, want NETWORK", KindOf(err))
	}
}

func TestRetryDoesNotRetryValidationErrors(t *testing.T) {
	policy := NewRetryPolicy(5, time.Millisecond, 10*time.Millisecond, 2.0).WithSeed(1)

	attempts := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return NewValidationError("bad address")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if KindOf(err) != KindValidation {
		t.Errorf("kind = %s, want VALIDATION", KindOf(err))
	}
}

func TestRetryDoesNotRetryCircuitOpen(t *testing.T) {
	policy := NewRetryPolicy(5, time.Millisecond, 10*time.Millisecond, 2.0).WithSeed(1)

	attempts := 0
	err := policy.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return newCircuitOpenError("open")
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	policy := NewRetryPolicy(10, 50*time.Millisecond, time.Second, 2.0).WithSeed(1)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Do(ctx, func(ctx context.Context) error {
		attempts++
		return NewNetworkError("down", errors.New("timeout"))
	})

	if err == nil {
		t.Fatal("expected error after cancellation")
	}
	if attempts >= 10 {
		t.Errorf("attempts = %d, expected early abort", attempts)
	}
}

func TestDelayForGrowsAndCaps(t *testing.T) {
	policy := NewRetryPolicy(10, 100*time.Millisecond, 300*time.Millisecond, 2.0).WithSeed(1)

	jitterMax := 50 * time.Millisecond
	d1 := policy.delayFor(1)
	if d1 < 100*time.Millisecond || d1 > 100*time.Millisecond+jitterMax {
		t.Errorf("delayFor(1) = %v, want 100ms plus jitter", d1)
	}
	d2 := policy.delayFor(2)
	if d2 < 200*time.Millisecond || d2 > 200*time.Millisecond+jitterMax {
		t.Errorf("delayFor(2) = %v, want 200ms plus jitter", d2)
	}
	d5 := policy.delayFor(5)
	if d5 < 300*time.Millisecond || d5 > 300*time.Millisecond+jitterMax {
		t.Errorf("delayFor(5) = %v, want capped 300ms plus jitter", d5)
	}
}
