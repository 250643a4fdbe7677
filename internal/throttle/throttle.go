// Package throttle enforces a minimum spacing between request issuances
// across all workers.
package throttle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/sitegrab/sitegrab/internal/metrics"
)

// Limiter serializes request issuance timing globally. A token bucket with
// burst 1 refilling every interval guarantees that two consecutive releases
// are never closer together than the configured interval; the bucket's
// internal lock is the single-writer discipline over the shared timestamp.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter enforcing the given minimum interval between
// releases. A zero or negative interval disables throttling.
func New(interval time.Duration) *Limiter {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Wait blocks until the caller may issue a request, respecting the context.
// It never fails on its own; the only error is context cancellation.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveThrottleDelay(waited)
	}
	return nil
}
