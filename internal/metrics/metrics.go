// Package metrics exposes Prometheus collectors for the scraper.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scraperPagesTotal           *prometheus.CounterVec
	scraperBytesTotal           *prometheus.CounterVec
	scraperRetriesTotal         *prometheus.CounterVec
	scraperBatchesTotal         *prometheus.CounterVec
	scraperActiveWorkers        prometheus.Gauge
	scraperThrottleDelaySeconds prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times;
// all Observe helpers are no-ops until it runs.
func Init() {
	once.Do(func() {
		scraperPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_pages_total",
				Help: "Total number of pages fetched, labeled by site and status code.",
			},
			[]string{"site", "status"},
		)

		scraperBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_bytes_total",
				Help: "Total number of body bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		scraperRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_retries_total",
				Help: "Total number of retried attempts, labeled by site.",
			},
			[]string{"site"},
		)

		scraperBatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_batches_total",
				Help: "Total number of batch runs, labeled by status.",
			},
			[]string{"status"},
		)

		scraperActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of workers currently running a retry loop.",
			},
		)

		scraperThrottleDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scraper_throttle_delay_seconds",
				Help:    "Histogram of inter-request throttle wait durations.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveScrape records one successful fetch.
func ObserveScrape(site string, statusCode int, bytesFetched int) {
	if scraperPagesTotal == nil {
		return
	}
	sanitized := SanitizeSite(site)
	scraperPagesTotal.WithLabelValues(sanitized, strconv.Itoa(statusCode)).Inc()
	if bytesFetched > 0 {
		scraperBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveRetry records one retried attempt.
func ObserveRetry(site string) {
	if scraperRetriesTotal == nil {
		return
	}
	scraperRetriesTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveBatch increments the batch counter for the given status.
func ObserveBatch(status string) {
	if scraperBatchesTotal == nil {
		return
	}
	scraperBatchesTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	if scraperActiveWorkers != nil {
		scraperActiveWorkers.Inc()
	}
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	if scraperActiveWorkers != nil {
		scraperActiveWorkers.Dec()
	}
}

// ObserveThrottleDelay records the duration of one throttle wait.
func ObserveThrottleDelay(duration time.Duration) {
	if scraperThrottleDelaySeconds != nil {
		scraperThrottleDelaySeconds.Observe(duration.Seconds())
	}
}
