package ledger

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// RetryPolicy re-invokes a fallible operation with exponential backoff and
// jitter. It is stateless; the rand source is injectable so tests can pin the
// jitter.
type RetryPolicy struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	rng               *rand.Rand
}

// NewRetryPolicy builds a policy with the given parameters and a time-seeded
// jitter source.
func NewRetryPolicy(maxAttempts int, baseDelay, maxDelay time.Duration, multiplier float64) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:       maxAttempts,
		BaseDelay:         baseDelay,
		MaxDelay:          maxDelay,
		BackoffMultiplier: multiplier,
		rng:               rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSeed replaces the jitter source. Test hook.
func (p *RetryPolicy) WithSeed(seed int64) *RetryPolicy {
	p.rng = rand.New(rand.NewSource(seed))
	return p
}

// Do invokes op, retrying transient failures up to MaxAttempts. Validation,
// configuration and circuit-open errors propagate immediately. On exhaustion
// the last failure is wrapped in a NETWORK error carrying the attempt count.
func (p *RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return NewNetworkError("retry aborted by context", err)
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}

		if !IsRetryable(lastErr) {
			return lastErr
		}

		if attempt == p.MaxAttempts {
			break
		}

		delay := p.delayFor(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return NewNetworkError("retry aborted by context", ctx.Err())
		}
	}

	return NewNetworkError(
		fmt.Sprintf("operation failed after %d attempts", p.MaxAttempts),
		lastErr,
	)
}

// delayFor computes min(base * multiplier^(attempt-1), max) plus jitter up to
// half of the base delay.
func (p *RetryPolicy) delayFor(attempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt-1))
	if backoff > float64(p.MaxDelay) {
		backoff = float64(p.MaxDelay)
	}

	jitter := time.Duration(0)
	if p.BaseDelay > 0 {
		jitter = time.Duration(p.rng.Int63n(int64(p.BaseDelay)/2 + 1))
	}

	return time.Duration(backoff) + jitter
}
