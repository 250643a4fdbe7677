// Package scraper defines core types shared across subsystems.
package scraper

import (
	"fmt"
	"net/http"
	"time"
)

// FetchRequest captures everything needed to fetch a single URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result of one successful retrieval. A non-2xx
// status code still counts as a successful retrieval at this layer; only
// transport-level failures are errors.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	FetchedAt  time.Time
}

// Failure records a URL whose retries were exhausted, or that was never
// attempted because the run was canceled.
type Failure struct {
	URL          string `json:"url"`
	LastError    string `json:"error"`
	AttemptsMade int    `json:"attempts_made"`
	Canceled     bool   `json:"canceled,omitempty"`
}

// Outcome is the terminal result of one unit of work. Exactly one of
// Success or Failed is set.
type Outcome struct {
	URL     string
	Success *FetchResponse
	Failed  *Failure
}

// BatchResult aggregates every outcome of one engine run. Successes and
// Failures are ordered by completion, not by submission.
type BatchResult struct {
	Successes  []FetchResponse
	Failures   []Failure
	TotalInput int
	StartedAt  time.Time
	Duration   time.Duration
}

// Settings governs one batch run. Immutable once the run starts.
type Settings struct {
	Timeout           time.Duration
	MaxRetries        int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	Concurrency       int
	InterRequestDelay time.Duration
	UserAgent         string
	Headers           http.Header
}

// Validate enforces the constraints every run depends on.
func (s Settings) Validate() error {
	if s.Concurrency < 1 {
		return fmt.Errorf("concurrency must be >= 1, got %d", s.Concurrency)
	}
	if s.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be >= 1, got %d", s.MaxRetries)
	}
	if s.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %s", s.Timeout)
	}
	if s.InterRequestDelay < 0 {
		return fmt.Errorf("inter_request_delay must be >= 0, got %s", s.InterRequestDelay)
	}
	return nil
}
