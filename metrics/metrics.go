// Package metrics exposes prometheus collectors for the auth and realtime
// components.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "blog"

const (
	StateAuthenticated = "authenticated"
	StateAnonymous     = "anonymous"
)

// Metrics groups the collectors. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	authRejections *prometheus.CounterVec
	rateLimited    prometheus.Counter
	connections    *prometheus.GaugeVec
	handshakes     *prometheus.CounterVec
	deliveries     *prometheus.CounterVec
	limiterTracked bool
}

// New creates the collectors on a private registry, together with the
// go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		authRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Requests rejected by the auth pipeline, by reason.",
		}, []string{"reason"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ratelimit_rejections_total",
			Help:      "Mutating requests rejected by the rate limiter.",
		}),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connections",
			Help:      "Open realtime connections, by authentication state.",
		}, []string{"state"}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_handshakes_total",
			Help:      "Realtime connect handshakes, by result.",
		}, []string{"result"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_deliveries_total",
			Help:      "Per session deliveries, by channel and result.",
		}, []string{"channel", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.authRejections,
		m.rateLimited,
		m.connections,
		m.handshakes,
		m.deliveries,
	)

	return m
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) AuthRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.authRejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// TrackLimiter exports size as the ratelimit_tracked_keys gauge. Only the
// first call registers.
func (m *Metrics) TrackLimiter(size func() int) {
	if m == nil || size == nil || m.limiterTracked {
		return
	}
	m.limiterTracked = true
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "ratelimit_tracked_keys",
		Help:      "Identifiers with a live rate limit window.",
	}, func() float64 { return float64(size()) }))
}

func (m *Metrics) ConnectionOpened(authenticated bool) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(state(authenticated)).Inc()
}

func (m *Metrics) ConnectionClosed(authenticated bool) {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(state(authenticated)).Dec()
}

// ConnectionAuthenticated moves a connection from anonymous to authenticated
func (m *Metrics) ConnectionAuthenticated() {
	if m == nil {
		return
	}
	m.connections.WithLabelValues(StateAnonymous).Dec()
	m.connections.WithLabelValues(StateAuthenticated).Inc()
}

func (m *Metrics) Handshake(result string) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(result).Inc()
}

func (m *Metrics) Delivery(channel, result string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, result).Inc()
}

func state(authenticated bool) string {
	if authenticated {
		return StateAuthenticated
	}
	return StateAnonymous
}
