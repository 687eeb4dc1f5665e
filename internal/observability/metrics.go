package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "rabbithole"

// Metrics holds the service's Prometheus collectors on a private registry,
// so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	NodesCreated     prometheus.Counter
	Reactivations    prometheus.Counter
	AutoSaves        *prometheus.CounterVec
	PersistFailures  *prometheus.CounterVec
	NavigateFailures prometheus.Counter
	LayoutDuration   *prometheus.HistogramVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		NodesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodes_created_total",
			Help:      "Tree nodes created from navigation events.",
		}),
		Reactivations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_reactivations_total",
			Help:      "Navigation events that re-activated an existing node.",
		}),
		AutoSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autosaves_total",
			Help:      "Auto-saves of the live tree, by outcome.",
		}, []string{"kind"}),
		PersistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_failures_total",
			Help:      "Failed persistence writes, by key.",
		}, []string{"key"}),
		NavigateFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigate_failures_total",
			Help:      "Outbound navigation requests that failed.",
		}),
		LayoutDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layout_duration_seconds",
			Help:      "Time spent computing a tree layout.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}, []string{"variant"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		m.NodesCreated,
		m.Reactivations,
		m.AutoSaves,
		m.PersistFailures,
		m.NavigateFailures,
		m.LayoutDuration,
		m.HTTPRequests,
		m.HTTPDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLayout records how long a layout of the given variant took.
func (m *Metrics) ObserveLayout(variant string, started time.Time) {
	if m == nil {
		return
	}
	m.LayoutDuration.WithLabelValues(variant).Observe(time.Since(started).Seconds())
}
