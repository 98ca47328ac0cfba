// Package metrics provides Prometheus metrics for the race engine (RED + domain gauges).
// Scrapeable /metrics; dashboards can rely on these names. ActiveRuns, InFlightRequests,
// TokensTotal, GenerationSeconds and RunItemsTotal are registered but no code in this
// module updates them, so they report zero.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "llmrace"

var (
	// HTTPRequestTotal counts requests by method, path, status (RED: rate).
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDurationSeconds is request latency histogram (RED: duration).
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "path"},
	)

	// DBQueryDurationSeconds is repository query latency histogram, by operation.
	DBQueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Repository query duration in seconds, by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 10),
		},
		[]string{"operation"},
	)

	// ActiveRuns is the number of runs currently RUNNING.
	ActiveRuns = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Number of runs currently in the RUNNING state.",
		},
	)

	// InFlightRequests is the number of provider generate() calls currently admitted through
	// a provider-type semaphore (§5).
	InFlightRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_requests",
			Help:      "Number of in-flight provider generate() calls by provider type.",
		},
		[]string{"provider_type"},
	)

	// TokensTotal counts output tokens produced, by car.
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Total output tokens produced, by car.",
		},
		[]string{"car"},
	)

	// GenerationSeconds is the wall-clock generation-phase duration histogram, by provider type.
	GenerationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_seconds",
			Help:      "Provider generate() call wall-clock duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
		[]string{"provider_type"},
	)

	// RunItemsTotal counts completed run-items by terminal status.
	RunItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "run_items_total",
			Help:      "Total run-items reaching a terminal status.",
		},
		[]string{"status"},
	)
)
