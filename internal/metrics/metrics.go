// Package metrics exposes Prometheus collectors for the orchestrator service.
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
	crawlCyclesTotal           *prometheus.CounterVec
	crawlCycleDurationSeconds  *prometheus.HistogramVec
	pagesFetchedTotal          *prometheus.CounterVec
	pageBytesTotal             *prometheus.CounterVec
	factsExtractedTotal        prometheus.Counter
	gapsFilledTotal            prometheus.Counter
	entityMergesTotal          prometheus.Counter
	relationshipsRemovedTotal  *prometheus.CounterVec
	relationshipsInferredTotal prometheus.Counter
	headlessPromotionsTotal    prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	activeCycles               prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlCyclesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kg_crawl_cycles_total",
				Help: "Total number of crawl cycles run, labeled by mode and status.",
			},
			[]string{"mode", "status"},
		)

		crawlCycleDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kg_crawl_cycle_duration_seconds",
				Help:    "Histogram of crawl cycle wall time, labeled by mode.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
			[]string{"mode"},
		)

		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kg_pages_fetched_total",
				Help: "Total number of pages fetched, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		pageBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kg_page_bytes_total",
				Help: "Total number of page bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		factsExtractedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kg_facts_extracted_total",
				Help: "Total number of facts extracted from pages.",
			},
		)

		gapsFilledTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kg_gaps_filled_total",
				Help: "Total number of expected fields filled by crawl cycles.",
			},
		)

		entityMergesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kg_entity_merges_total",
				Help: "Total number of entity soft-merges performed.",
			},
		)

		relationshipsRemovedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kg_relationships_removed_total",
				Help: "Total number of relationships removed, labeled by reason.",
			},
			[]string{"reason"},
		)

		relationshipsInferredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kg_relationships_inferred_total",
				Help: "Total number of relationships created by inference.",
			},
		)

		headlessPromotionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kg_headless_promotions_total",
				Help: "Total number of fetches retried through the headless browser.",
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

		activeCycles = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kg_active_crawl_cycles",
				Help: "Number of crawl cycles currently in flight.",
			},
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

// ObserveCycle records one finished crawl cycle.
func ObserveCycle(mode, status string, duration time.Duration) {
	crawlCyclesTotal.WithLabelValues(mode, status).Inc()
	crawlCycleDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveFetch increments the page fetch metrics.
func ObserveFetch(site, outcome string, bytesFetched int) {
	sanitized := SanitizeSite(site)
	pagesFetchedTotal.WithLabelValues(sanitized, outcome).Inc()
	if bytesFetched > 0 {
		pageBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// AddFactsExtracted adds to the extracted fact counter.
func AddFactsExtracted(n int) {
	if n > 0 {
		factsExtractedTotal.Add(float64(n))
	}
}

// AddGapsFilled adds to the filled gap counter.
func AddGapsFilled(n int) {
	if n > 0 {
		gapsFilledTotal.Add(float64(n))
	}
}

// ObserveMerge increments the entity merge counter.
func ObserveMerge() {
	entityMergesTotal.Inc()
}

// AddRelationshipsRemoved records removed relationships for a reason such
// as "duplicate", "self_loop", or "orphaned".
func AddRelationshipsRemoved(reason string, n int) {
	if n > 0 {
		relationshipsRemovedTotal.WithLabelValues(reason).Add(float64(n))
	}
}

// AddRelationshipsInferred adds to the inferred relationship counter.
func AddRelationshipsInferred(n int) {
	if n > 0 {
		relationshipsInferredTotal.Add(float64(n))
	}
}

// ObserveHeadlessPromotion increments the headless retry counter.
func ObserveHeadlessPromotion() {
	headlessPromotionsTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveCycles increments the in-flight cycle gauge.
func IncActiveCycles() {
	activeCycles.Inc()
}

// DecActiveCycles decrements the in-flight cycle gauge.
func DecActiveCycles() {
	activeCycles.Dec()
}
