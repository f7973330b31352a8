package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer spaces out sequential model calls. The first Wait returns at once;
// each later Wait blocks until the interval since the previous one has passed.
type Pacer struct {
	interval time.Duration
	lim      *rate.Limiter
}

// NewPacer returns a Pacer with the given minimum gap. A non-positive
// interval disables pacing.
func NewPacer(interval time.Duration) *Pacer {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Pacer{interval: interval, lim: rate.NewLimiter(limit, 1)}
}

// Unlimited is a Pacer that never waits.
func Unlimited() *Pacer {
	return NewPacer(0)
}

// Wait blocks until the next call may proceed. A nil Pacer never waits.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	return p.lim.Wait(ctx)
}

// Interval returns the configured gap.
func (p *Pacer) Interval() time.Duration {
	if p == nil {
		return 0
	}
	return p.interval
}
