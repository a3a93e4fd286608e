// Package metrics exposes Prometheus counters for login-guard decisions.
//
// All methods are safe to call on a nil *Metrics, so services can take an
// optional metrics dependency without guarding every call site.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "login_guard"

type Metrics struct {
	RateLimitDecisions *prometheus.CounterVec
	SecurityEvents     *prometheus.CounterVec
	TokenValidations   *prometheus.CounterVec
	SessionsCleaned    prometheus.Counter
}

// New creates the counters and registers them on reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Rate limit decisions by outcome.",
		}, []string{"decision"}),
		SecurityEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "security_events_total",
			Help:      "Security events logged by type and severity.",
		}, []string{"event_type", "severity"}),
		TokenValidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remember_token_validations_total",
			Help:      "Remember-me token validations by outcome.",
		}, []string{"outcome"}),
		SessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_sessions_cleaned_total",
			Help:      "Expired device sessions deleted by cleanup.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.RateLimitDecisions, m.SecurityEvents, m.TokenValidations, m.SessionsCleaned)
	}
	return m
}

func (m *Metrics) ObserveDecision(decision string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) ObserveSecurityEvent(eventType, severity string) {
	if m == nil {
		return
	}
	m.SecurityEvents.WithLabelValues(eventType, severity).Inc()
}

func (m *Metrics) ObserveTokenValidation(outcome string) {
	if m == nil {
		return
	}
	m.TokenValidations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveSessionsCleaned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsCleaned.Add(float64(n))
}
