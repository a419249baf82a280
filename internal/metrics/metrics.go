// Package metrics provides Prometheus metrics for the docshell server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Render statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Bundle build results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds all Prometheus metrics for a docshell server.
//
// A nil *Metrics is valid and records nothing, so callers don't need to check
// whether metrics are enabled.
type Metrics struct {
	// Registry is the registry every metric below is registered with.
	Registry *prometheus.Registry

	Renders        *prometheus.CounterVec // labels: status
	RenderDuration prometheus.Histogram

	BundleBuilds *prometheus.CounterVec // labels: result

	LiveReloadClients    prometheus.Gauge
	LiveReloadBroadcasts prometheus.Counter
}

// New creates a Metrics with its own registry, including the standard Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Metrics{
		Registry: reg,
		Renders: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "docshell_renders_total",
			Help: "Total document renders, by status",
		}, []string{"status"}),
		RenderDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "docshell_render_duration_seconds",
			Help:    "Time spent rendering the document",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		BundleBuilds: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "docshell_bundle_builds_total",
			Help: "Total CSS bundle builds, by result",
		}, []string{"result"}),
		LiveReloadClients: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "docshell_livereload_clients",
			Help: "Number of connected live reload clients",
		}),
		LiveReloadBroadcasts: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "docshell_livereload_broadcasts_total",
			Help: "Total reload signals broadcast to clients",
		}),
	}
}

// ObserveRender records one document render.
func (m *Metrics) ObserveRender(err error, took time.Duration) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.Renders.WithLabelValues(status).Inc()
	m.RenderDuration.Observe(took.Seconds())
}

// ObserveBundleBuild records one CSS bundle build.
func (m *Metrics) ObserveBundleBuild(err error) {
	if m == nil {
		return
	}
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	m.BundleBuilds.WithLabelValues(result).Inc()
}

// SetLiveReloadClients records the number of connected live reload clients.
func (m *Metrics) SetLiveReloadClients(n int) {
	if m == nil {
		return
	}
	m.LiveReloadClients.Set(float64(n))
}

// IncLiveReloadBroadcasts records one reload broadcast.
func (m *Metrics) IncLiveReloadBroadcasts() {
	if m == nil {
		return
	}
	m.LiveReloadBroadcasts.Inc()
}

// Handler returns an http.Handler exposing the metrics in m.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
