// Package metrics exposes Prometheus collectors for provider calls, logins
// and sign-outs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Label names.
const (
	LabelOperation = "operation"
	LabelOutcome   = "outcome"
	LabelResult    = "result"
)

// Provider call outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeHTTPError = "http_error"
	OutcomeTransport = "transport_error"
)

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	providerRequestsTotal   *prometheus.CounterVec
	providerRequestDuration *prometheus.HistogramVec
	loginsTotal             *prometheus.CounterVec
	signOutsTotal           *prometheus.CounterVec
}

// Config holds metrics configuration.
type Config struct {
	Namespace string
}

// New creates a Metrics instance with its own registry.
func New(cfg Config) *Metrics {
	if cfg.Namespace == "" {
		cfg.Namespace = "customer_auth"
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		providerRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "provider_requests_total",
			Help:      "Outbound identity provider requests by operation and outcome.",
		}, []string{LabelOperation, LabelOutcome}),
		providerRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Latency of outbound identity provider requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{LabelOperation}),
		loginsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "logins_total",
			Help:      "Completed login attempts by result.",
		}, []string{LabelResult}),
		signOutsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "signouts_total",
			Help:      "Sign-outs by provider revocation result.",
		}, []string{LabelResult}),
	}
}

// ObserveProviderRequest records one outbound provider call.
func (m *Metrics) ObserveProviderRequest(operation, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.providerRequestsTotal.WithLabelValues(operation, outcome).Inc()
	m.providerRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// IncLogin records a completed login attempt.
func (m *Metrics) IncLogin(result string) {
	if m == nil {
		return
	}
	m.loginsTotal.WithLabelValues(result).Inc()
}

// IncSignOut records a sign-out and whether provider revocation succeeded.
func (m *Metrics) IncSignOut(result string) {
	if m == nil {
		return
	}
	m.signOutsTotal.WithLabelValues(result).Inc()
}

// Logins returns the login counter, labelled by result.
func (m *Metrics) Logins() *prometheus.CounterVec {
	return m.loginsTotal
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
