// Package metrics exposes Prometheus collectors for konadl runs.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesTotal             *prometheus.CounterVec
	postsFilteredTotal     prometheus.Counter
	downloadsTotal         *prometheus.CounterVec
	downloadedBytesTotal   prometheus.Counter
	pageStallsTotal        prometheus.Counter
	retriesTotal           *prometheus.CounterVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	activeDownloads        prometheus.Gauge
	rateLimitDelaysSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times.
func Init() {
	once.Do(func() {
		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "konadl_pages_total",
				Help: "Listing pages processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		postsFilteredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "konadl_posts_filtered_total",
				Help: "Posts dropped by the rating filter.",
			},
		)

		downloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "konadl_downloads_total",
				Help: "Per-post download results, labeled by status.",
			},
			[]string{"status"},
		)

		downloadedBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "konadl_downloaded_bytes_total",
				Help: "Bytes written to the download directory.",
			},
		)

		pageStallsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "konadl_page_stalls_total",
				Help: "Pages abandoned because the batch deadline expired.",
			},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "konadl_retries_total",
				Help: "Retried fetcher operations, labeled by operation.",
			},
			[]string{"operation"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "konadl_http_requests_total",
				Help: "HTTP requests sent to the booru, labeled by operation and code.",
			},
			[]string{"operation", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "konadl_http_request_duration_seconds",
				Help:    "Histogram of booru request latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		)

		activeDownloads = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "konadl_active_downloads",
				Help: "Downloads currently in flight.",
			},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "konadl_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"host"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is done
func Serve(ctx context.Context, addr string) error {
	Init()
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

// ObservePage counts a processed page
func ObservePage(outcome string) {
	Init()
	pagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveFiltered counts posts dropped by the rating filter
func ObserveFiltered(n int) {
	Init()
	if n > 0 {
		postsFilteredTotal.Add(float64(n))
	}
}

// ObserveDownload counts one per-post result
func ObserveDownload(status string, bytes int64) {
	Init()
	downloadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		downloadedBytesTotal.Add(float64(bytes))
	}
}

// ObserveStall counts a page abandoned by its batch deadline
func ObserveStall() {
	Init()
	pageStallsTotal.Inc()
}

// ObserveRetry counts a retried operation
func ObserveRetry(operation string) {
	Init()
	retriesTotal.WithLabelValues(operation).Inc()
}

// ObserveHTTPRequest records one booru request
func ObserveHTTPRequest(operation string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(operation, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncActiveDownloads increments the in-flight gauge
func IncActiveDownloads() {
	Init()
	activeDownloads.Inc()
}

// DecActiveDownloads decrements the in-flight gauge
func DecActiveDownloads() {
	Init()
	activeDownloads.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(host).Observe(d.Seconds())
}
