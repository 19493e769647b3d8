// Package metrics defines the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	SessionsCreated   prometheus.Counter
	ParticipantsAdded prometheus.Counter
	DuplicateJoins    prometheus.Counter
	RateLimited       prometheus.Counter
	MediaPinned       *prometheus.CounterVec
	WatchersActive    prometheus.Gauge
	RequestDuration   *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		SessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blanc",
			Name:      "sessions_created_total",
			Help:      "Join sessions created.",
		}),
		ParticipantsAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blanc",
			Name:      "participants_added_total",
			Help:      "Participants newly added to a session.",
		}),
		DuplicateJoins: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blanc",
			Name:      "participants_duplicate_total",
			Help:      "Join attempts by an identity already in the session.",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "blanc",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the per-IP limiter.",
		}),
		MediaPinned: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blanc",
			Name:      "media_pin_total",
			Help:      "Media uploads forwarded to the pinning service.",
		}, []string{"result"}),
		WatchersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "blanc",
			Name:      "session_watchers",
			Help:      "Open websocket session watchers.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "blanc",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method", "code"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.SessionsCreated,
		m.ParticipantsAdded,
		m.DuplicateJoins,
		m.RateLimited,
		m.MediaPinned,
		m.WatchersActive,
		m.RequestDuration,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records the latency of a finished request.
func (m *Metrics) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	m.RequestDuration.WithLabelValues(route, method, strconv.Itoa(code)).Observe(elapsed.Seconds())
}
