package llm

import (
	"context"
	"time"

	"github.com/TobiSchelling/DailyDigest/internal/metrics"
	"github.com/TobiSchelling/DailyDigest/internal/ratelimit"
	"github.com/TobiSchelling/DailyDigest/internal/retry"
)

// Caller wraps a Provider with pacing, per-attempt timeouts and retries.
// It is shared by every stage of one run so the pacing spans stages.
type Caller struct {
	Provider Provider
	Pacer    *ratelimit.Pacer
	Policy   retry.Policy
	Timeout  time.Duration
	Metrics  metrics.Recorder
}

// Call waits for the pacer, then generates with retries.
func (c *Caller) Call(ctx context.Context, stage string, req Request) (string, error) {
	if err := c.Pacer.Wait(ctx); err != nil {
		return "", err
	}

	text, err := retry.Do(ctx, c.Policy, func(ctx context.Context) (string, error) {
		if c.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.Timeout)
			defer cancel()
		}
		return c.Provider.Generate(ctx, req)
	})

	if c.Metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		c.Metrics.ModelCall(stage, outcome)
	}
	return text, err
}
