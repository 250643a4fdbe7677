package scraper

import (
	"fmt"
	"sync"
	"time"
)

// Aggregator is the single point where outcomes are recorded. Record may be
// called from any goroutine; the growing collections are guarded by one
// mutex so concurrent writes never interleave.
type Aggregator struct {
	mu        sync.Mutex
	successes []FetchResponse
	failures  []Failure
	total     int
	startedAt time.Time
	clock     Clock
}

// NewAggregator creates an Aggregator expecting exactly total outcomes.
func NewAggregator(clock Clock, total int) *Aggregator {
	return &Aggregator{
		total:     total,
		startedAt: clock.Now(),
		clock:     clock,
	}
}

// Record appends one terminal outcome in completion order.
func (a *Aggregator) Record(outcome Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case outcome.Success != nil:
		a.successes = append(a.successes, *outcome.Success)
	case outcome.Failed != nil:
		a.failures = append(a.failures, *outcome.Failed)
	}
}

// Finalize closes the run. It must only be called after every submitted
// URL has produced a terminal outcome, and it verifies that invariant.
func (a *Aggregator) Finalize() (BatchResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if got := len(a.successes) + len(a.failures); got != a.total {
		return BatchResult{}, fmt.Errorf("outcome count mismatch: recorded %d, expected %d", got, a.total)
	}
	return BatchResult{
		Successes:  a.successes,
		Failures:   a.failures,
		TotalInput: a.total,
		StartedAt:  a.startedAt,
		Duration:   a.clock.Now().Sub(a.startedAt),
	}, nil
}
