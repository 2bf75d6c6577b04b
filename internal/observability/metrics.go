package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Turn metrics
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nutria",
			Subsystem: "turn",
			Name:      "total",
			Help:      "Total number of conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	GenerationLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "nutria",
			Subsystem: "turn",
			Name:      "generation_seconds",
			Help:      "Latency of the generation collaborator in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	// Action metrics
	ActionsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nutria",
			Subsystem: "action",
			Name:      "executed_total",
			Help:      "Total number of executed action proposals",
		},
		[]string{"action_type", "outcome"},
	)

	CacheInvalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nutria",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Total number of invalidated cache keys",
		},
		[]string{"key"},
	)

	// Persistence metrics
	PersistWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nutria",
			Subsystem: "persist",
			Name:      "writes_total",
			Help:      "Total number of conversation writes",
		},
		[]string{"op"},
	)

	PersistFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "nutria",
			Subsystem: "persist",
			Name:      "failures_total",
			Help:      "Conversation writes that failed after all retries",
		},
	)

	// Capture metrics
	CaptureErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nutria",
			Subsystem: "capture",
			Name:      "errors_total",
			Help:      "Capture, transcription and image analysis failures",
		},
		[]string{"stage"},
	)

	LiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "nutria",
			Subsystem: "session",
			Name:      "live",
			Help:      "Number of live conversation sessions",
		},
	)

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nutria",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nutria",
			Subsystem: "http",
			Name:      "request_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)
