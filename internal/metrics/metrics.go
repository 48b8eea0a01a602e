// Package metrics provides Prometheus metrics for the workflow bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	ProbeResultsTotal   *prometheus.CounterVec
	ProbeLatency        *prometheus.HistogramVec
	TokenRefreshesTotal *prometheus.CounterVec
	InvocationsTotal    *prometheus.CounterVec
	FallbackLogsTotal   prometheus.Counter

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		ProbeResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_probe_results_total",
				Help: "Connectivity probe results by endpoint and classification.",
			},
			[]string{"endpoint", "classification"},
		),
		ProbeLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_probe_latency_seconds",
				Help:    "Connectivity probe latency by endpoint.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		TokenRefreshesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_token_refreshes_total",
				Help: "Token refresh attempts by result.",
			},
			[]string{"result"},
		),
		InvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_invocations_total",
				Help: "Plugin invocations by action and outcome.",
			},
			[]string{"action", "outcome"},
		),
		FallbackLogsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bridge_fallback_logs_total",
				Help: "Log lines diverted to the fallback channel because the host logger was unusable.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.ProbeResultsTotal)
	reg.MustRegister(m.ProbeLatency)
	reg.MustRegister(m.TokenRefreshesTotal)
	reg.MustRegister(m.InvocationsTotal)
	reg.MustRegister(m.FallbackLogsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordProbe counts one probe result and its latency.
func (m *Metrics) RecordProbe(endpoint, classification string, seconds float64) {
	if m == nil {
		return
	}
	m.ProbeResultsTotal.WithLabelValues(endpoint, classification).Inc()
	m.ProbeLatency.WithLabelValues(endpoint).Observe(seconds)
}

// RecordRefresh counts a refresh attempt ("ok", "reauthorize", "failed").
func (m *Metrics) RecordRefresh(result string) {
	if m == nil {
		return
	}
	m.TokenRefreshesTotal.WithLabelValues(result).Inc()
}

// RecordInvocation counts a plugin invocation.
func (m *Metrics) RecordInvocation(action, outcome string) {
	if m == nil {
		return
	}
	m.InvocationsTotal.WithLabelValues(action, outcome).Inc()
}

// RecordFallbackLog counts a log line that took the fallback channel.
func (m *Metrics) RecordFallbackLog() {
	if m == nil {
		return
	}
	m.FallbackLogsTotal.Inc()
}
