// Package metrics exposes the engine's Prometheus instrumentation:
// promauto counters/histograms plus a dedicated metrics HTTP server, with
// series named for this engine's fetch/emission/session domain.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal counts every upstream fetch attempt by source and
	// outcome ("ok" or "error").
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockrealtime_fetches_total",
			Help: "Total upstream fetch attempts by source and outcome",
		},
		[]string{"source", "status"},
	)

	// FetchDuration tracks how long a source's Fetch/Dispatch call takes.
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockrealtime_fetch_duration_seconds",
			Help:    "Upstream fetch duration by source",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		},
		[]string{"source"},
	)

	// QuotesEmittedTotal counts quotes handed to the Gateway for emission
	// after delta suppression, by the source that produced them, whether or
	// not any client is subscribed to them.
	QuotesEmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockrealtime_quotes_emitted_total",
			Help: "Quotes handed to the gateway after delta suppression, by source",
		},
		[]string{"source"},
	)

	// ScrapeSessionOutcomes counts how scraper fetch sessions resolve:
	// completed (done marker or full coverage), retried, or dropped
	// (exhausted its retry budget).
	ScrapeSessionOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockrealtime_scrape_session_outcomes_total",
			Help: "Scraper fetch session outcomes",
		},
		[]string{"outcome"},
	)

	// PoolEnqueuesDropped counts interest enqueues dropped because the
	// pool's ingress channel was full.
	PoolEnqueuesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stockrealtime_pool_enqueues_dropped_total",
			Help: "Interest-set enqueues dropped because the ingress channel was full",
		},
	)
)

// RecordFetch records one upstream fetch's outcome and duration.
func RecordFetch(source, status string, durationSeconds float64) {
	FetchesTotal.WithLabelValues(source, status).Inc()
	FetchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordQuotesEmitted records how many quotes from source made it past
// delta suppression and were handed to the Gateway.
func RecordQuotesEmitted(source string, count int) {
	QuotesEmittedTotal.WithLabelValues(source).Add(float64(count))
}

// RecordScrapeSessionOutcome records how one scraper fetch session ended.
func RecordScrapeSessionOutcome(outcome string) {
	ScrapeSessionOutcomes.WithLabelValues(outcome).Inc()
}
