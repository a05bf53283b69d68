// Package telemetry exposes Prometheus metrics for the discovery pipeline.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_pages_total",
			Help: "Total number of pages crawled, labeled by host and outcome.",
		},
		[]string{"host", "outcome"},
	)

	fetchRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_fetch_retries_total",
			Help: "Total number of fetch retries, labeled by error code.",
		},
		[]string{"code"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_query_cache_lookups_total",
			Help: "Query cache lookups, labeled by result (hit, miss, expired).",
		},
		[]string{"result"},
	)

	queriesGeneratedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "leadscout_queries_generated_total",
			Help: "Total number of search queries produced by the generator.",
		},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leadscout_rate_limit_delay_seconds",
			Help:    "Time spent waiting on the per-host rate limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"host"},
	)

	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leadscout_analyses_total",
			Help: "Website analyses performed, labeled by outcome.",
		},
		[]string{"outcome"},
	)
)

// RecordPage increments the page counter for a host and outcome.
func RecordPage(host, outcome string) {
	pagesTotal.WithLabelValues(host, outcome).Inc()
}

// RecordRetry increments the retry counter for an error code.
func RecordRetry(code string) {
	fetchRetriesTotal.WithLabelValues(code).Inc()
}

// RecordCacheLookup increments the cache lookup counter.
func RecordCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordQueriesGenerated adds to the generated query counter.
func RecordQueriesGenerated(n int) {
	queriesGeneratedTotal.Add(float64(n))
}

// ObserveRateLimitDelay records time spent blocked on the rate limiter.
func ObserveRateLimitDelay(host string, d time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}

// RecordAnalysis increments the analysis counter for an outcome.
func RecordAnalysis(outcome string) {
	analysesTotal.WithLabelValues(outcome).Inc()
}
