// Package metrics exposes Prometheus collectors for the cache warmer.
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

// Outcome labels for warm results.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeCached  = "cached"
)

var (
	warmResultsTotal           *prometheus.CounterVec
	warmDurationSeconds        *prometheus.HistogramVec
	presenceChecksTotal        *prometheus.CounterVec
	urlCollectionsTotal        *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		warmResultsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachewarmer_warm_results_total",
				Help: "Total number of warm results, labeled by URL type and outcome.",
			},
			[]string{"type", "outcome"},
		)

		warmDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cachewarmer_warm_duration_seconds",
				Help:    "Histogram of warming request latencies, labeled by storefront host and URL type.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host", "type"},
		)

		presenceChecksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachewarmer_presence_checks_total",
				Help: "Total number of cache presence checks, labeled by the tier that answered.",
			},
			[]string{"source"},
		)

		urlCollectionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cachewarmer_url_collections_total",
				Help: "Total number of URL collections, labeled by site and result.",
			},
			[]string{"site", "result"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cachewarmer_active_workers",
				Help: "Number of workers currently warming a URL.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveWarm records the outcome of a single warm of rawURL and, when a
// request was made, its latency.
func ObserveWarm(rawURL, urlType, outcome string, duration time.Duration) {
	warmResultsTotal.WithLabelValues(urlType, outcome).Inc()
	if outcome != OutcomeCached && duration > 0 {
		warmDurationSeconds.WithLabelValues(SanitizeSite(rawURL), urlType).Observe(duration.Seconds())
	}
}

// ObservePresence increments the presence counter for the answering tier
// ("store", "file", "miss" or "error").
func ObservePresence(source string) {
	presenceChecksTotal.WithLabelValues(source).Inc()
}

// ObserveCollection increments the collection counter for a site.
func ObserveCollection(siteID int, result string) {
	urlCollectionsTotal.WithLabelValues(strconv.Itoa(siteID), result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}
