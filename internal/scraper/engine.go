package scraper

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/sitegrab/sitegrab/internal/metrics"
)

// Engine fans an unordered batch of URLs out to a bounded worker pool.
// Each worker runs one URL's full retry sequence before taking another,
// so freed capacity is immediately reused by pending URLs.
type Engine struct {
	fetcher  Fetcher
	throttle Throttle
	backoff  BackoffPolicy
	clock    Clock
	settings Settings
	logger   *zap.Logger
}

// NewEngine constructs an Engine.
func NewEngine(
	fetcher Fetcher,
	throttle Throttle,
	backoff BackoffPolicy,
	clock Clock,
	settings Settings,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		fetcher:  fetcher,
		throttle: throttle,
		backoff:  backoff,
		clock:    clock,
		settings: settings,
		logger:   logger,
	}
}

// Run processes the whole batch and blocks until every URL has a terminal
// outcome. Per-URL failures never abort the batch; the only errors returned
// are configuration and input problems detected before any worker starts.
func (e *Engine) Run(ctx context.Context, urls []string) (BatchResult, error) {
	if err := e.settings.Validate(); err != nil {
		return BatchResult{}, fmt.Errorf("validate settings: %w", err)
	}
	if err := validateURLs(urls); err != nil {
		return BatchResult{}, err
	}

	agg := NewAggregator(e.clock, len(urls))
	loop := NewLoop(e.fetcher, e.throttle, e.backoff, LoopConfig{
		MaxRetries: e.settings.MaxRetries,
		Timeout:    e.settings.Timeout,
	}, e.logger)

	jobs := make(chan string)
	outcomes := make(chan Outcome)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for outcome := range outcomes {
			agg.Record(outcome)
		}
	}()

	workers := e.settings.Concurrency
	if workers > len(urls) {
		workers = len(urls)
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for u := range jobs {
				metrics.IncActiveWorkers()
				outcomes <- loop.Run(ctx, FetchRequest{URL: u, Headers: e.settings.Headers})
				metrics.DecActiveWorkers()
			}
		}()
	}

	// The feeder stops admitting URLs once the context is canceled and
	// synthesizes canceled failures for everything never handed out.
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(jobs)
		for i, u := range urls {
			select {
			case jobs <- u:
			case <-ctx.Done():
				for _, skipped := range urls[i:] {
					outcomes <- canceledFailure(skipped)
				}
				return
			}
		}
	}()

	wg.Wait()
	close(outcomes)
	<-consumerDone

	result, err := agg.Finalize()
	if err != nil {
		return BatchResult{}, fmt.Errorf("finalize batch: %w", err)
	}
	e.logger.Info("batch finished",
		zap.Int("total", result.TotalInput),
		zap.Int("succeeded", len(result.Successes)),
		zap.Int("failed", len(result.Failures)),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func canceledFailure(u string) Outcome {
	return Outcome{
		URL: u,
		Failed: &Failure{
			URL:       u,
			LastError: ErrCanceled.Error(),
			Canceled:  true,
		},
	}
}

func validateURLs(urls []string) error {
	if len(urls) == 0 {
		return fmt.Errorf("no urls to scrape")
	}
	for _, raw := range urls {
		parsed, err := url.ParseRequestURI(raw)
		if err != nil {
			return fmt.Errorf("invalid url %q: %w", raw, err)
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
		}
	}
	return nil
}
