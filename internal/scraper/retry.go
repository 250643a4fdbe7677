package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sitegrab/sitegrab/internal/metrics"
)

// ErrCanceled marks failures synthesized for URLs whose unit of work was
// stopped by cancellation rather than by exhausted retries.
var ErrCanceled = errors.New("scrape canceled")

// LoopConfig controls the per-URL retry loop.
type LoopConfig struct {
	MaxRetries int
	Timeout    time.Duration
}

// Loop runs one URL's full retry sequence to a terminal outcome. It owns
// all retry decisions; callers submit a URL exactly once and always get
// exactly one Outcome back.
type Loop struct {
	fetcher  Fetcher
	throttle Throttle
	backoff  BackoffPolicy
	cfg      LoopConfig
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewLoop constructs a Loop.
func NewLoop(fetcher Fetcher, throttle Throttle, backoff BackoffPolicy, cfg LoopConfig, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &Loop{
		fetcher:  fetcher,
		throttle: throttle,
		backoff:  backoff,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Run executes up to MaxRetries attempts and never returns an error: every
// terminal state is expressed as an Outcome. Transport failures are retried;
// any obtained HTTP response, whatever its status code, is terminal success.
func (l *Loop) Run(ctx context.Context, request FetchRequest) Outcome {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= l.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return l.canceledOutcome(request.URL, attempts, lastErr)
		}
		if err := l.throttle.Wait(ctx); err != nil {
			return l.canceledOutcome(request.URL, attempts, lastErr)
		}

		resp, err := l.attempt(ctx, request)
		attempts = attempt
		if err == nil {
			metrics.ObserveScrape(request.URL, resp.StatusCode, len(resp.Body))
			return Outcome{URL: request.URL, Success: &resp}
		}
		lastErr = err
		l.logger.Warn("fetch attempt failed",
			zap.String("url", request.URL),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)

		if attempt == l.cfg.MaxRetries {
			break
		}
		metrics.ObserveRetry(request.URL)
		if err := l.sleep(ctx, l.backoff.Delay(attempt)); err != nil {
			return l.canceledOutcome(request.URL, attempts, lastErr)
		}
	}

	return Outcome{
		URL: request.URL,
		Failed: &Failure{
			URL:          request.URL,
			LastError:    lastErr.Error(),
			AttemptsMade: attempts,
		},
	}
}

func (l *Loop) attempt(ctx context.Context, request FetchRequest) (FetchResponse, error) {
	attemptCtx := ctx
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}
	return l.fetcher.Fetch(attemptCtx, request)
}

func (l *Loop) canceledOutcome(url string, attempts int, lastErr error) Outcome {
	msg := ErrCanceled.Error()
	if lastErr != nil {
		msg = fmt.Sprintf("%s (last error: %s)", msg, lastErr)
	}
	return Outcome{
		URL: url,
		Failed: &Failure{
			URL:          url,
			LastError:    msg,
			AttemptsMade: attempts,
			Canceled:     true,
		},
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
