// Package metrics exposes Prometheus collectors for harvest runs.
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

// Record stages counted by ObserveRecord.
const (
	StageBuilt     = "built"
	StageValidated = "validated"
	StageRejected  = "rejected"
	StagePersisted = "persisted"
	StageDuplicate = "duplicate"
	StageExported  = "exported"
)

var (
	documentsTotal             *prometheus.CounterVec
	fetchedBytesTotal          *prometheus.CounterVec
	recordsTotal               *prometheus.CounterVec
	fieldMissesTotal           *prometheus.CounterVec
	storePutDurationSeconds    *prometheus.HistogramVec
	activeWorkers              prometheus.Gauge
	robotsFallbackTotal        *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		documentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropharvest_documents_total",
				Help: "Total number of documents seen, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		fetchedBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropharvest_fetched_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropharvest_records_total",
				Help: "Records passing each pipeline stage, labeled by record kind and stage.",
			},
			[]string{"kind", "stage"},
		)

		fieldMissesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropharvest_field_misses_total",
				Help: "Fields no extraction strategy could fill, labeled by record kind and field.",
			},
			[]string{"kind", "field"},
		)

		storePutDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cropharvest_store_put_duration_seconds",
				Help:    "Histogram of store write latencies, labeled by record kind.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"kind"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "cropharvest_active_workers",
				Help: "Number of extraction workers currently processing a document.",
			},
		)

		robotsFallbackTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cropharvest_robots_fallback_total",
				Help: "robots.txt fetches that fell back to allow-all, labeled by reason.",
			},
			[]string{"reason"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cropharvest_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"site"},
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

// ObserveDocument counts a document by site and outcome.
func ObserveDocument(site string, status string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	documentsTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		fetchedBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveRecord counts a record reaching stage.
func ObserveRecord(kind, stage string) {
	recordsTotal.WithLabelValues(kind, stage).Inc()
}

// ObserveSnapshot counts records written to a snapshot.
func ObserveSnapshot(records int) {
	recordsTotal.WithLabelValues("snapshot", StageExported).Add(float64(records))
}

// ObserveFieldMiss counts a field left absent by extraction.
func ObserveFieldMiss(kind, field string) {
	fieldMissesTotal.WithLabelValues(kind, field).Inc()
}

// ObserveStorePut records how long one Put took.
func ObserveStorePut(kind string, duration time.Duration) {
	storePutDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRobotsFallback counts a robots.txt fetch treated as allow-all.
func ObserveRobotsFallback(reason string) {
	robotsFallbackTotal.WithLabelValues(reason).Inc()
}

// ObserveRateLimitDelay records how long a fetch waited for its host's
// rate limiter.
func ObserveRateLimitDelay(site string, delay time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(SanitizeSite(site)).Observe(delay.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}
