// Package metrics exposes relay traffic and failure counts to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the relay. It satisfies both
// the router's and the responder's observability sinks.
type Metrics struct {
	registry *prometheus.Registry

	MessagesTotal             *prometheus.CounterVec
	RegistrationsTotal        *prometheus.CounterVec
	DeliveryFailuresTotal     *prometheus.CounterVec
	CollaboratorFailuresTotal *prometheus.CounterVec
	BotAnswersTotal           *prometheus.CounterVec
	ActiveSessionsGauge       prometheus.Gauge
}

// New creates and registers all collectors on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_messages_total",
				Help: "Total number of routed chat messages by kind",
			},
			[]string{"kind"},
		),
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_registrations_total",
				Help: "Total number of username registration attempts by result",
			},
			[]string{"result"},
		),
		DeliveryFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_delivery_failures_total",
				Help: "Total number of failed session deliveries by reason",
			},
			[]string{"reason"},
		),
		CollaboratorFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_collaborator_failures_total",
				Help: "Total number of persistence, embedding and completion failures",
			},
			[]string{"collaborator"},
		),
		BotAnswersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_bot_answers_total",
				Help: "Total number of bot answers by outcome",
			},
			[]string{"outcome"},
		),
		ActiveSessionsGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_active_sessions",
				Help: "Number of registered sessions",
			},
		),
	}

	registry.MustRegister(
		m.MessagesTotal,
		m.RegistrationsTotal,
		m.DeliveryFailuresTotal,
		m.CollaboratorFailuresTotal,
		m.BotAnswersTotal,
		m.ActiveSessionsGauge,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Handler returns the HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) MessageRouted(kind string) {
	m.MessagesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) Registration(result string) {
	m.RegistrationsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) DeliveryFailed(reason string) {
	m.DeliveryFailuresTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) CollaboratorFailed(collaborator string) {
	m.CollaboratorFailuresTotal.WithLabelValues(collaborator).Inc()
}

func (m *Metrics) ActiveSessions(n int) {
	m.ActiveSessionsGauge.Set(float64(n))
}

func (m *Metrics) BotAnswered(outcome string) {
	m.BotAnswersTotal.WithLabelValues(outcome).Inc()
}
