// Package metrics exposes prometheus collectors for the checkout service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeReplay  = "replay"
	OutcomeReused  = "reused"
)

// Metrics holds every collector the service records to.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
	intents        *prometheus.CounterVec
	confirmations  *prometheus.CounterVec
	outboxMessages *prometheus.CounterVec
}

// New creates and registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_ms",
				Help:    "Duration of HTTP requests in ms",
				Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
			},
			[]string{"method", "path"},
		),
		intents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "checkout_intents_total",
				Help: "Order intents by payment mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		confirmations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_confirmations_total",
				Help: "Payment confirmations by assurance tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		outboxMessages: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_messages_total",
				Help: "Outbox events handed to the message broker",
			},
			[]string{"event_type", "outcome"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.intents,
		m.confirmations,
		m.outboxMessages,
	)

	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(method, path string, status int, duration time.Duration) {
	route := RouteLabel(path)
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(float64(duration.Milliseconds()))
}

// IntentCreated records the outcome of an intent creation or retry.
func (m *Metrics) IntentCreated(mode, outcome string) {
	m.intents.WithLabelValues(mode, outcome).Inc()
}

// Confirmation records the outcome of a reconciliation attempt.
func (m *Metrics) Confirmation(tier, outcome string) {
	m.confirmations.WithLabelValues(tier, outcome).Inc()
}

// OutboxPublished records events handed to the broker.
func (m *Metrics) OutboxPublished(eventType, outcome string, n int) {
	m.outboxMessages.WithLabelValues(eventType, outcome).Add(float64(n))
}

// RouteLabel collapses identifiers in path so the label set stays bounded.
func RouteLabel(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if _, err := uuid.Parse(seg); err == nil {
			segments[i] = ":id"
			continue
		}
		if i > 0 && (segments[i-1] == "products" || segments[i-1] == "items") {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}
