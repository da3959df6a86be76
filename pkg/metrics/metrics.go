// Package metrics defines the Prometheus instrumentation for the server.
// All collectors live on a private registry exposed via Handler so tests can
// create isolated instances.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the server records into.
type Metrics struct {
	registry *prometheus.Registry

	ToolCalls        *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	ProviderCalls        *prometheus.CounterVec
	ProviderCallDuration *prometheus.HistogramVec

	SessionsActive    prometheus.Gauge
	SessionsCompleted *prometheus.CounterVec
	SessionTurns      prometheus.Histogram

	TournamentMatches  *prometheus.CounterVec
	TournamentDuration prometheus.Histogram

	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	CacheEvictions prometheus.Counter

	EventsDropped prometheus.Counter
}

// New creates the collector set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,

		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quarry_tool_calls_total",
			Help: "Tool invocations by tool name and outcome.",
		}, []string{"tool", "outcome"}),
		ToolCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quarry_tool_call_duration_seconds",
			Help:    "Tool invocation latency by tool name.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"tool"}),

		ProviderCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quarry_provider_calls_total",
			Help: "Model provider calls by provider and error class.",
		}, []string{"provider", "class"}),
		ProviderCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quarry_provider_call_duration_seconds",
			Help:    "Model provider call latency by provider.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"provider"}),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "quarry_sessions_active",
			Help: "Conversation sessions currently held in memory.",
		}),
		SessionsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quarry_sessions_completed_total",
			Help: "Sessions reaching a terminal state, by reason.",
		}, []string{"reason"}),
		SessionTurns: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quarry_session_turns",
			Help:    "Turn count at session completion.",
			Buckets: prometheus.LinearBuckets(1, 5, 11),
		}),

		TournamentMatches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "quarry_tournament_matches_total",
			Help: "Tournament matches by outcome.",
		}, []string{"outcome"}),
		TournamentDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "quarry_tournament_duration_seconds",
			Help:    "End-to-end tournament duration.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "quarry_cache_hits_total",
			Help: "Result cache hits.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "quarry_cache_misses_total",
			Help: "Result cache misses.",
		}),
		CacheEvictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "quarry_cache_evictions_total",
			Help: "Result cache LRU evictions.",
		}),

		EventsDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "quarry_events_dropped_total",
			Help: "Events dropped on full subscriber channels.",
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveToolCall records one tool invocation.
func (m *Metrics) ObserveToolCall(tool, outcome string, elapsed time.Duration) {
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveProviderCall records one provider call. class is "ok" for success
// or the error class string.
func (m *Metrics) ObserveProviderCall(provider, class string, elapsed time.Duration) {
	m.ProviderCalls.WithLabelValues(provider, class).Inc()
	m.ProviderCallDuration.WithLabelValues(provider).Observe(elapsed.Seconds())
}
