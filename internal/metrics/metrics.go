// Package metrics exposes Prometheus collectors for the tag crawler.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesFetchedTotal      prometheus.Counter
	fetchAttemptsTotal     *prometheus.CounterVec
	addressesIngestedTotal *prometheus.CounterVec
	ingestFailuresTotal    prometheus.Counter
	tagsTotal              *prometheus.CounterVec
	rateLimitWaitSeconds   prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tagcrawler_pages_fetched_total",
				Help: "Total number of API pages fetched successfully.",
			},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagcrawler_fetch_attempts_total",
				Help: "Total fetch attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		addressesIngestedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagcrawler_addresses_ingested_total",
				Help: "Total addresses ingested, labeled by upsert result.",
			},
			[]string{"result"},
		)

		ingestFailuresTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tagcrawler_ingest_failures_total",
				Help: "Total addresses skipped because of storage errors.",
			},
		)

		tagsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tagcrawler_tags_total",
				Help: "Total tags processed, labeled by terminal outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tagcrawler_rate_limit_wait_seconds",
				Help:    "Histogram of rate limit cooldown durations.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
			},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePageFetched counts a successfully fetched page.
func ObservePageFetched() {
	Init()
	pagesFetchedTotal.Inc()
}

// ObserveFetchAttempt counts one fetch attempt by outcome
// (success, rate_limited, retryable).
func ObserveFetchAttempt(outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAddressIngested counts an ingested address by upsert result.
func ObserveAddressIngested(result string) {
	Init()
	addressesIngestedTotal.WithLabelValues(result).Inc()
}

// ObserveIngestFailure counts an address skipped due to a storage error.
func ObserveIngestFailure() {
	Init()
	ingestFailuresTotal.Inc()
}

// ObserveTagOutcome counts a tag reaching a terminal state.
func ObserveTagOutcome(outcome string) {
	Init()
	tagsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitWait records the duration of a rate limit cooldown.
func ObserveRateLimitWait(d time.Duration) {
	Init()
	rateLimitWaitSeconds.Observe(d.Seconds())
}
