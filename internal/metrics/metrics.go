// Package metrics exposes scan, module and log stream activity to
// Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vigil/internal/models"
	"vigil/pkg/engine"
	"vigil/pkg/hub"
)

// Compile-time interface checks.
var (
	_ hub.Observer          = (*Metrics)(nil)
	_ engine.ModuleObserver = (*Metrics)(nil)
)

type Metrics struct {
	registry *prometheus.Registry

	// Counters
	scansStarted    prometheus.Counter
	scansFinished   *prometheus.CounterVec
	moduleRuns      *prometheus.CounterVec
	findingsTotal   *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	eventsDropped   prometheus.Counter

	// Gauges
	scansRunning   prometheus.Gauge
	logSubscribers prometheus.Gauge

	// Histograms
	moduleDuration *prometheus.HistogramVec
}

// New creates the metrics on a private registry so tests can build as many
// as they like.
func New() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.scansStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vigil_scans_started_total",
		Help: "Total number of scans accepted",
	})
	m.scansFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_scans_finished_total",
		Help: "Total number of scans that reached a terminal status",
	}, []string{"status"})
	m.moduleRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_module_runs_total",
		Help: "Total number of module runs by outcome",
	}, []string{"module", "status"})
	m.findingsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_findings_total",
		Help: "Total number of findings recorded",
	}, []string{"module", "severity"})
	m.eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vigil_log_events_published_total",
		Help: "Total number of log events published to the hub",
	}, []string{"type"})
	m.eventsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vigil_log_events_dropped_total",
		Help: "Total number of log events dropped because a subscriber fell behind",
	})

	m.scansRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vigil_scans_running",
		Help: "Number of scans currently in progress",
	})
	m.logSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vigil_log_subscribers",
		Help: "Number of attached log stream subscribers",
	})

	m.moduleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vigil_module_duration_seconds",
		Help:    "Module run duration",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"module"})

	m.registry.MustRegister(
		m.scansStarted,
		m.scansFinished,
		m.moduleRuns,
		m.findingsTotal,
		m.eventsPublished,
		m.eventsDropped,
		m.scansRunning,
		m.logSubscribers,
		m.moduleDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ScanStarted() {
	m.scansStarted.Inc()
	m.scansRunning.Inc()
}

func (m *Metrics) ScanFinished(status models.Status) {
	m.scansRunning.Dec()
	m.scansFinished.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) FindingsRecorded(module string, findings []models.Finding) {
	for _, f := range findings {
		m.findingsTotal.WithLabelValues(module, string(f.Severity)).Inc()
	}
}

func (m *Metrics) ModuleFinished(module string, status models.Status, duration time.Duration) {
	m.moduleRuns.WithLabelValues(module, string(status)).Inc()
	m.moduleDuration.WithLabelValues(module).Observe(duration.Seconds())
}

func (m *Metrics) EventPublished(eventType hub.EventType, delivered int) {
	m.eventsPublished.WithLabelValues(string(eventType)).Inc()
}

func (m *Metrics) EventDropped(scanID string) {
	m.eventsDropped.Inc()
}

func (m *Metrics) SubscriberAttached(scanID string) {
	m.logSubscribers.Inc()
}

func (m *Metrics) SubscriberDetached(scanID string) {
	m.logSubscribers.Dec()
}
