package retry

import (
	"context"
	"fmt"
	"time"
)

// Policy bounds how an operation is retried.
type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// BaseDelay is the wait before the first retry; each later retry doubles it.
	BaseDelay time.Duration
	// Retryable reports whether err is worth another attempt. Nil retries nothing.
	Retryable func(error) bool
}

// Backoff returns the delay before retry number n, counting from zero.
func (p Policy) Backoff(n int) time.Duration {
	return p.BaseDelay << n
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// retry budget is spent.
func Do[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		if p.Retryable == nil || !p.Retryable(err) {
			return zero, err
		}
		if attempt >= p.MaxRetries {
			return zero, fmt.Errorf("failed after %d attempts: %w", attempt+1, err)
		}

		delay := p.Backoff(attempt)
		if delay <= 0 {
			if ctx.Err() != nil {
				return zero, ctx.Err()
			}
			continue
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
}
