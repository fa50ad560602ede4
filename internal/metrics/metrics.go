// Package metrics holds the Prometheus collectors of the dashboard.
// Every recording method is safe to call on a nil *Registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the application
type Registry struct {
	// HTTP Metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	AuthFailuresTotal   prometheus.Counter

	// Stream Metrics
	StreamSubscribers    prometheus.Gauge
	StreamEvictionsTotal prometheus.Counter
	StreamMessagesTotal  *prometheus.CounterVec

	// Alert Metrics
	AlertsActive          *prometheus.GaugeVec
	AlertTransitionsTotal *prometheus.CounterVec
	MechanicLoad          *prometheus.GaugeVec
	HistorySinkFailures   prometheus.Counter

	// Monitor Metrics
	MonitorPollsTotal   *prometheus.CounterVec
	MonitorPollDuration prometheus.Histogram
	StoreConnected      prometheus.Gauge

	// System Metrics
	BuildInfo     *prometheus.GaugeVec
	UptimeSeconds prometheus.GaugeFunc

	registry *prometheus.Registry
}

// NewRegistry creates a registry with every metric initialized, plus the
// Go runtime and process collectors.
func NewRegistry(version string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{registry: reg}
	f := promauto.With(reg)

	r.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watermon_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	r.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "watermon_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	r.AuthFailuresTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "watermon_auth_failures_total",
		Help: "Rejected logins and unauthenticated requests",
	})

	r.StreamSubscribers = f.NewGauge(prometheus.GaugeOpts{
		Name: "watermon_stream_subscribers",
		Help: "Connected live stream subscribers",
	})
	r.StreamEvictionsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "watermon_stream_evictions_total",
		Help: "Subscribers dropped because their queue was full",
	})
	r.StreamMessagesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watermon_stream_messages_total",
			Help: "Messages broadcast to live subscribers",
		},
		[]string{"type"},
	)

	r.AlertsActive = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watermon_alerts_active",
			Help: "Currently active alerts",
		},
		[]string{"kind"},
	)
	r.AlertTransitionsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watermon_alert_transitions_total",
			Help: "Alert lifecycle transitions",
		},
		[]string{"kind", "transition"},
	)
	r.MechanicLoad = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watermon_mechanic_load",
			Help: "Leak alerts currently assigned per mechanic",
		},
		[]string{"mechanic"},
	)
	r.HistorySinkFailures = f.NewCounter(prometheus.CounterOpts{
		Name: "watermon_history_sink_failures_total",
		Help: "Failed writes to the alert history database",
	})

	r.MonitorPollsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "watermon_monitor_polls_total",
			Help: "Store poll iterations by result",
		},
		[]string{"result"},
	)
	r.MonitorPollDuration = f.NewHistogram(prometheus.HistogramOpts{
		Name:    "watermon_monitor_poll_duration_seconds",
		Help:    "Duration of one store poll iteration",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
	r.StoreConnected = f.NewGauge(prometheus.GaugeOpts{
		Name: "watermon_store_connected",
		Help: "1 if the shared store is reachable",
	})

	r.BuildInfo = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "watermon_build_info",
			Help: "Build information",
		},
		[]string{"version"},
	)
	r.BuildInfo.WithLabelValues(version).Set(1)

	start := time.Now()
	r.UptimeSeconds = f.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "watermon_uptime_seconds",
			Help: "Seconds since the process started",
		},
		func() float64 { return time.Since(start).Seconds() },
	)

	return r
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
