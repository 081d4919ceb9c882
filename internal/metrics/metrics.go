package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	registry *prometheus.Registry

	// Conversation metrics
	MessagesReceivedTotal prometheus.Counter
	RepliesTotal          *prometheus.CounterVec
	SessionResetsTotal    prometheus.Counter
	SessionsActive        prometheus.Gauge

	// Generation metrics
	GenerationDuration      prometheus.Histogram
	GenerationFailuresTotal *prometheus.CounterVec
}

// New creates and registers all metrics.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		MessagesReceivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "messages_received_total",
				Help: "Total number of inbound user messages",
			},
		),
		RepliesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replies_total",
				Help: "Total number of replies returned to users",
			},
			[]string{"outcome"}, // reply, fallback
		),
		SessionResetsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "session_resets_total",
				Help: "Total number of explicit conversation resets",
			},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sessions_active",
				Help: "Number of live conversation sessions",
			},
		),

		GenerationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "generation_duration_seconds",
				Help:    "Duration of backend generation calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		GenerationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "generation_failures_total",
				Help: "Total number of failed generation calls",
			},
			[]string{"reason"}, // transport, blocked, timeout, empty, empty_input
		),
	}

	m.registerMetrics()

	return m
}

func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(
		m.MessagesReceivedTotal,
		m.RepliesTotal,
		m.SessionResetsTotal,
		m.SessionsActive,
		m.GenerationDuration,
		m.GenerationFailuresTotal,
	)
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
