// Package metrics exposes Prometheus instrumentation for the gateway.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// durationBuckets covers LLM latencies from sub-second cache hits to
// multi-minute generations.
var durationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

// Metrics holds the gateway's Prometheus collectors. Each instance owns a
// private registry, so independent instances never collide. A nil *Metrics
// is a valid no-op recorder, so callers never check whether metrics are
// enabled.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	attemptsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	tokensTotal     *prometheus.CounterVec
}

// New creates and registers the gateway metrics under the given namespace.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total client requests by dialect, group and HTTP status",
			},
			[]string{"dialect", "group", "status"},
		),
		attemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attempts_total",
				Help:      "Total upstream attempts by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Client request duration in seconds",
				Buckets:   durationBuckets,
			},
			[]string{"dialect"},
		),
		tokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_tokens_total",
				Help:      "Total tokens reported by upstreams, by provider and type",
			},
			[]string{"provider", "type"},
		),
	}

	m.registry.MustRegister(
		m.requestsTotal,
		m.attemptsTotal,
		m.requestDuration,
		m.tokensTotal,
	)
	return m
}

// Handler serves the text exposition format for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordRequest counts one finished client request.
func (m *Metrics) RecordRequest(dialect, group, status string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(dialect, group, status).Inc()
}

// RecordAttempt counts one upstream attempt.
func (m *Metrics) RecordAttempt(provider, outcome string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(provider, outcome).Inc()
}

// ObserveDuration records a client request duration.
func (m *Metrics) ObserveDuration(dialect string, seconds float64) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(dialect).Observe(seconds)
}

// AddTokens accumulates upstream-reported token counts. type is "prompt" or
// "completion".
func (m *Metrics) AddTokens(provider, tokenType string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.tokensTotal.WithLabelValues(provider, tokenType).Add(float64(n))
}
