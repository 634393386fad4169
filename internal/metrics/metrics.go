// Package metrics exposes the Prometheus surface TelemetryConfig.Metrics
// enables: session state, dispatcher queue depth, invocation outcomes and
// health-check transitions, all mounted on the same local listener as
// /health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionOpen is 1 while a Session is Open, 0 otherwise.
	SessionOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayforge_session_open",
		Help: "1 while the outbound control plane session is open, 0 otherwise",
	})

	// DispatcherQueueDepth counts invocations dispatched but not yet
	// returned to the caller, across the bounded worker pool.
	DispatcherQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relayforge_dispatcher_queue_depth",
		Help: "Invocations submitted to the Dispatcher's worker pool but not yet completed",
	})

	// InvocationsTotal counts Invocation Executor calls by data source
	// provider_type and outcome.
	InvocationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayforge_invocations_total",
			Help: "Total Invocation Executor calls by provider_type and outcome",
		},
		[]string{"provider_type", "outcome"},
	)

	// InvocationDuration measures wall-clock invocation latency by
	// provider_type. Each call is bounded by the Invocation Executor's
	// Config.Timeout (30s by default); this histogram is observability only.
	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relayforge_invocation_duration_seconds",
			Help:    "Invocation Executor call duration in seconds by provider_type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider_type"},
	)

	// HealthTransitionsTotal counts Health Checker status transitions by
	// data source name: published on change, debounced when unchanged.
	HealthTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relayforge_health_transitions_total",
			Help: "Total Health Checker status transitions by data source name",
		},
		[]string{"data_source_name"},
	)
)
