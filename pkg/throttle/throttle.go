// Package throttle implements the global request-rate ceiling shared
// by every virtual user, so the aggregate outbound request rate never
// exceeds an operator-configured cap regardless of how many users are
// hatched.
package throttle

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle gates outbound requests to at most Limit per second across
// all callers. A zero-value Throttle (or one built with limit <= 0)
// never blocks.
type Throttle struct {
	limiter *rate.Limiter
}

// New builds a Throttle allowing at most requestsPerSecond requests
// per second, bursting up to one request. requestsPerSecond <= 0
// disables throttling entirely, matching the CLI's "--throttle-requests
// 0 means unlimited" contract.
func New(requestsPerSecond float64) *Throttle {
	if requestsPerSecond <= 0 {
		return &Throttle{}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1)}
}

// Wait blocks until a permit is available or ctx is canceled.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

// Limit returns the configured requests-per-second ceiling, or 0 if
// throttling is disabled.
func (t *Throttle) Limit() float64 {
	if t == nil || t.limiter == nil {
		return 0
	}
	return float64(t.limiter.Limit())
}
