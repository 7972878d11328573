// Package metrics holds the Prometheus collectors served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "rootcause"

var (
	// HTTPRequestsTotal counts requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, route, and status.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDurationSeconds is request latency by method and route.
	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10),
		},
		[]string{"method", "route"},
	)

	// DiagnosesTotal counts similarity queries by outcome (ok, empty, error).
	DiagnosesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnoses_total",
			Help:      "Total number of diagnose queries by outcome.",
		},
		[]string{"outcome"},
	)

	// RecordsIngestedTotal counts records by result (added, skipped, invalid).
	RecordsIngestedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_ingested_total",
			Help:      "Total number of ingested records by result.",
		},
		[]string{"result"},
	)

	// StoreRecords is the number of records in the vector store.
	StoreRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_records",
			Help:      "Number of records in the vector store.",
		},
	)

	// NarrowQuestionsTotal counts proposals by result (proposed, none, error).
	NarrowQuestionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narrow_questions_total",
			Help:      "Total number of narrowing question proposals by result.",
		},
		[]string{"result"},
	)

	// NarrowAnswersTotal counts technician answers (yes, no, skip).
	NarrowAnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narrow_answers_total",
			Help:      "Total number of narrowing answers by value.",
		},
		[]string{"answer"},
	)

	// NarrowOutcomesTotal counts finished dialogues (resolved, tie).
	NarrowOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narrow_outcomes_total",
			Help:      "Total number of finished narrowing dialogues by outcome.",
		},
		[]string{"outcome"},
	)

	// ActiveDialogues is the number of dialogues held by the registry.
	ActiveDialogues = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_dialogues",
			Help:      "Number of narrowing dialogues held in memory.",
		},
	)

	// ProviderDurationSeconds is latency of embedding and LLM calls.
	ProviderDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Embedding and LLM provider call duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2.5, 10),
		},
		[]string{"kind", "provider", "status"},
	)
)
