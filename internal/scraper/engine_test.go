package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSettings(concurrency int) Settings {
	return Settings{
		Timeout:     time.Second,
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		Concurrency: concurrency,
	}
}

func TestEngineRunMixedOutcomes(t *testing.T) {
	t.Parallel()

	// Mirrors the canonical two-URL batch: one URL that always times out
	// and one that succeeds immediately.
	fetcher := &mapFetcher{
		errs: map[string]error{
			"https://a.test": errors.New("context deadline exceeded"),
		},
		responses: map[string]FetchResponse{
			"https://b.test": {URL: "https://b.test", StatusCode: http.StatusOK},
		},
	}
	engine := newTestEngine(fetcher, testSettings(2))

	result, err := engine.Run(context.Background(), []string{"https://a.test", "https://b.test"})
	require.NoError(t, err)

	require.Equal(t, 2, result.TotalInput)
	require.Len(t, result.Successes, 1)
	require.Len(t, result.Failures, 1)
	require.Equal(t, "https://b.test", result.Successes[0].URL)
	require.Equal(t, "https://a.test", result.Failures[0].URL)
	require.Equal(t, 3, result.Failures[0].AttemptsMade)
}

func TestEngineRunNoURLLostOrDuplicated(t *testing.T) {
	t.Parallel()

	var urls []string
	fetcher := &mapFetcher{responses: map[string]FetchResponse{}, errs: map[string]error{}}
	for i := 0; i < 50; i++ {
		u := fmt.Sprintf("https://site-%d.test", i)
		urls = append(urls, u)
		if i%3 == 0 {
			fetcher.errs[u] = errors.New("connection refused")
		} else {
			fetcher.responses[u] = FetchResponse{URL: u, StatusCode: http.StatusOK}
		}
	}
	engine := newTestEngine(fetcher, testSettings(8))

	result, err := engine.Run(context.Background(), urls)
	require.NoError(t, err)

	require.Equal(t, len(urls), len(result.Successes)+len(result.Failures))

	var got []string
	for _, s := range result.Successes {
		got = append(got, s.URL)
	}
	for _, f := range result.Failures {
		got = append(got, f.URL)
	}
	sort.Strings(got)
	want := append([]string(nil), urls...)
	sort.Strings(want)
	require.Equal(t, want, got)
}

func TestEngineRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	const limit = 3
	fetcher := &gaugedFetcher{}
	var urls []string
	for i := 0; i < 30; i++ {
		urls = append(urls, fmt.Sprintf("https://site-%d.test", i))
	}
	engine := newTestEngine(fetcher, testSettings(limit))

	_, err := engine.Run(context.Background(), urls)
	require.NoError(t, err)
	require.LessOrEqual(t, fetcher.peak(), int64(limit))
}

func TestEngineRunRejectsBadSettings(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(&mapFetcher{}, Settings{Timeout: time.Second, MaxRetries: 1})
	_, err := engine.Run(context.Background(), []string{"https://example.com"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "concurrency")
}

func TestEngineRunRejectsBadURLs(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(&mapFetcher{}, testSettings(2))

	_, err := engine.Run(context.Background(), []string{"https://ok.test", "not a url"})
	require.Error(t, err)

	_, err = engine.Run(context.Background(), []string{"ftp://wrong.test"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "scheme")

	_, err = engine.Run(context.Background(), nil)
	require.Error(t, err)
}

func TestEngineRunCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{}, 1)
	fetcher := &blockingFetcher{started: started}
	var urls []string
	for i := 0; i < 20; i++ {
		urls = append(urls, fmt.Sprintf("https://site-%d.test", i))
	}
	engine := newTestEngine(fetcher, testSettings(2))

	go func() {
		<-started
		cancel()
	}()

	done := make(chan struct{})
	var result BatchResult
	var runErr error
	go func() {
		result, runErr = engine.Run(ctx, urls)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not finish after cancellation")
	}

	require.NoError(t, runErr)
	require.Equal(t, len(urls), len(result.Successes)+len(result.Failures))

	canceled := 0
	for _, f := range result.Failures {
		if f.Canceled {
			canceled++
			require.Contains(t, f.LastError, ErrCanceled.Error())
		}
	}
	require.Positive(t, canceled, "urls never attempted must appear as canceled failures")
}

func newTestEngine(fetcher Fetcher, settings Settings) *Engine {
	return NewEngine(
		fetcher,
		noopThrottle{},
		NewExponentialBackoff(time.Microsecond, 0),
		&fakeClock{now: time.Unix(0, 0)},
		settings,
		zap.NewNop(),
	)
}

// --- fakes ---

type mapFetcher struct {
	mu        sync.Mutex
	responses map[string]FetchResponse
	errs      map[string]error
}

func (f *mapFetcher) Fetch(_ context.Context, req FetchRequest) (FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[req.URL]; ok {
		return FetchResponse{}, err
	}
	if resp, ok := f.responses[req.URL]; ok {
		return resp, nil
	}
	return FetchResponse{URL: req.URL, StatusCode: http.StatusOK}, nil
}

type gaugedFetcher struct {
	active int64
	max    int64
}

func (f *gaugedFetcher) Fetch(_ context.Context, req FetchRequest) (FetchResponse, error) {
	n := atomic.AddInt64(&f.active, 1)
	for {
		prev := atomic.LoadInt64(&f.max)
		if n <= prev || atomic.CompareAndSwapInt64(&f.max, prev, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	atomic.AddInt64(&f.active, -1)
	return FetchResponse{URL: req.URL, StatusCode: http.StatusOK}, nil
}

func (f *gaugedFetcher) peak() int64 {
	return atomic.LoadInt64(&f.max)
}

type blockingFetcher struct {
	once    sync.Once
	started chan struct{}
}

func (f *blockingFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	f.once.Do(func() { close(f.started) })
	select {
	case <-ctx.Done():
		return FetchResponse{}, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return FetchResponse{URL: req.URL, StatusCode: http.StatusOK}, nil
	}
}
