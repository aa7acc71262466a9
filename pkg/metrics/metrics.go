// Package metrics provides Prometheus instrumentation for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks completion requests by outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Total completion requests by outcome.",
		},
		[]string{"outcome"}, // "completed", "upstream_error", "client_disconnect", "rejected"
	)

	// ActiveSessions tracks the number of live stream sessions.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_active_sessions",
			Help: "Number of currently open stream sessions.",
		},
	)

	// TimeToFirstChunk measures seconds from stream start to the first
	// forwarded chunk.
	TimeToFirstChunk = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_time_to_first_chunk_seconds",
			Help:    "Latency from upstream stream start to first forwarded chunk.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"provider", "model"},
	)

	// SessionDuration measures total session lifetime in seconds.
	SessionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_session_duration_seconds",
			Help:    "Total stream session duration.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"provider", "model"},
	)

	// ChunksForwarded counts text chunks relayed to clients.
	ChunksForwarded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_chunks_forwarded_total",
			Help: "Total text chunks forwarded to clients.",
		},
		[]string{"provider", "model"},
	)

	// UpstreamErrors counts mid-stream provider failures.
	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_upstream_errors_total",
			Help: "Total upstream stream failures by provider.",
		},
		[]string{"provider"},
	)

	// ClientDisconnects counts clients that left before the stream ended.
	ClientDisconnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_client_disconnects_total",
			Help: "Total client disconnects observed mid-stream.",
		},
		[]string{"provider"},
	)

	// StreamOpenFailures counts failures to open an upstream stream,
	// after retries.
	StreamOpenFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_stream_open_failures_total",
			Help: "Total failed upstream stream opens by provider.",
		},
		[]string{"provider"},
	)

	// CircuitBreakerState tracks the per-provider breaker state.
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gateway_circuit_breaker_state",
			Help: "Circuit breaker state: 0=closed, 1=open, 2=half-open.",
		},
		[]string{"provider"},
	)
)
