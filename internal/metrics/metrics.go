// Package metrics holds the Prometheus collectors of the relay.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is a private registry so several servers can live in one process.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	MessagesPosted    prometheus.Counter
	DuplicateMessages prometheus.Counter
	MessagesExpired   prometheus.Counter
	PendingTimers     prometheus.Gauge
	ActiveConnections prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MessagesPosted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomrelay_messages_posted_total",
			Help: "Messages stored and broadcast.",
		}),
		DuplicateMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomrelay_messages_duplicate_total",
			Help: "Retried submissions absorbed by the idempotency key.",
		}),
		MessagesExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "roomrelay_messages_expired_total",
			Help: "Messages deleted by the retention scheduler.",
		}),
		PendingTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomrelay_retention_pending_timers",
			Help: "Armed expiration timers.",
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roomrelay_active_connections",
			Help: "Open websocket connections.",
		}),
	}
	m.registry.MustRegister(
		m.MessagesPosted, m.DuplicateMessages, m.MessagesExpired,
		m.PendingTimers, m.ActiveConnections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncPosted() {
	if m != nil {
		m.MessagesPosted.Inc()
	}
}

func (m *Metrics) IncDuplicate() {
	if m != nil {
		m.DuplicateMessages.Inc()
	}
}

func (m *Metrics) IncExpired() {
	if m != nil {
		m.MessagesExpired.Inc()
	}
}

func (m *Metrics) SetPendingTimers(n int) {
	if m != nil {
		m.PendingTimers.Set(float64(n))
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.ActiveConnections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.ActiveConnections.Dec()
	}
}
