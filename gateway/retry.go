package gateway

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy controls exponential backoff for provider calls.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultRetryPolicy matches the gateway-wide defaults: three attempts,
// one second base, capped at sixty seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BackoffBase: time.Second,
		BackoffMax:  60 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	out := p
	if out.MaxAttempts <= 0 {
		out.MaxAttempts = 3
	}
	if out.BackoffBase <= 0 {
		out.BackoffBase = time.Second
	}
	if out.BackoffMax <= 0 {
		out.BackoffMax = 60 * time.Second
	}
	return out
}

// Delay returns the backoff before the given zero-based retry attempt,
// with up to 10% jitter added to spread thundering herds.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	p = p.normalized()
	delay := p.BackoffBase << uint(attempt)
	if delay > p.BackoffMax || delay <= 0 {
		delay = p.BackoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}

// Retry runs op until it succeeds, the error is not retryable, or attempts
// are exhausted. The context cancels waits between attempts.
func Retry[T any](
	ctx context.Context,
	policy RetryPolicy,
	retryable func(error) bool,
	op func(ctx context.Context) (T, error),
) (T, error) {
	policy = policy.normalized()

	var zero T
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(policy.Delay(attempt - 1))
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
		}

		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if retryable != nil && !retryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}
