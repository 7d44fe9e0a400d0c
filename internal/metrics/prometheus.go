// Package metrics provides Prometheus-based metrics collection for bannerscan.
// Collectors cover probe outcomes, host scans, and the reporting collaborators,
// and are exposed through the optional HTTP server.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all bannerscan metrics
	namespace = "bannerscan"

	// Subsystems
	subsystemProbe  = "probe"
	subsystemHost   = "host"
	subsystemReport = "report"
)

// Recorder is the subset of metrics the scanning engine reports into.
type Recorder interface {
	ObserveProbe(status string, duration time.Duration)
	ProbeStarted()
	ProbeFinished()
}

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Probe metrics
	probesTotal   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	activeProbes  prometheus.Gauge

	// Host metrics
	hostsTotal   *prometheus.CounterVec
	hostDuration prometheus.Histogram
	openPorts    *prometheus.GaugeVec

	// Collaborator metrics
	reportErrors *prometheus.CounterVec
	runsTotal    prometheus.Counter

	startTime time.Time
	registry  *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all
// collectors registered on a private registry.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initProbeMetrics()
	pm.initHostMetrics()
	pm.initReportMetrics()
	pm.registerMetrics()

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initProbeMetrics() {
	pm.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "total",
			Help:      "Total number of port probes by outcome",
		},
		[]string{"status"},
	)

	pm.probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "duration_seconds",
			Help:      "Duration of single port probes in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"status"},
	)

	pm.activeProbes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "active",
			Help:      "Number of probes currently holding a connection slot",
		},
	)
}

func (pm *PrometheusMetrics) initHostMetrics() {
	pm.hostsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemHost,
			Name:      "scans_total",
			Help:      "Total number of host scans by outcome",
		},
		[]string{"status"},
	)

	pm.hostDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemHost,
			Name:      "duration_seconds",
			Help:      "Duration of full host scans in seconds",
			Buckets:   []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0},
		},
	)

	pm.openPorts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemHost,
			Name:      "open_ports",
			Help:      "Open ports found on each host by the latest scan",
		},
		[]string{"host"},
	)
}

func (pm *PrometheusMetrics) initReportMetrics() {
	pm.reportErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemReport,
			Name:      "errors_total",
			Help:      "Total number of reporting and delivery failures by stage",
		},
		[]string{"stage"},
	)

	pm.runsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Total number of completed scan runs",
		},
	)
}

// registerMetrics registers all metrics with the Prometheus registry
func (pm *PrometheusMetrics) registerMetrics() {
	pm.registry.MustRegister(pm.probesTotal)
	pm.registry.MustRegister(pm.probeDuration)
	pm.registry.MustRegister(pm.activeProbes)

	pm.registry.MustRegister(pm.hostsTotal)
	pm.registry.MustRegister(pm.hostDuration)
	pm.registry.MustRegister(pm.openPorts)

	pm.registry.MustRegister(pm.reportErrors)
	pm.registry.MustRegister(pm.runsTotal)
}

// GetRegistry returns the Prometheus registry for HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// Probe Metrics Methods

// ObserveProbe counts one finished probe and records its duration.
func (pm *PrometheusMetrics) ObserveProbe(status string, duration time.Duration) {
	pm.probesTotal.WithLabelValues(status).Inc()
	pm.probeDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// ProbeStarted increments the active probe gauge.
func (pm *PrometheusMetrics) ProbeStarted() {
	pm.activeProbes.Inc()
}

// ProbeFinished decrements the active probe gauge.
func (pm *PrometheusMetrics) ProbeFinished() {
	pm.activeProbes.Dec()
}

// Host Metrics Methods

// ObserveHost records a finished host scan.
func (pm *PrometheusMetrics) ObserveHost(host, status string, open int, duration time.Duration) {
	pm.hostsTotal.WithLabelValues(status).Inc()
	pm.hostDuration.Observe(duration.Seconds())
	pm.openPorts.WithLabelValues(host).Set(float64(open))
}

// Report Metrics Methods

// IncrementReportErrors counts a failure in the given reporting stage.
func (pm *PrometheusMetrics) IncrementReportErrors(stage string) {
	pm.reportErrors.WithLabelValues(stage).Inc()
}

// IncrementRuns counts a completed orchestrator run.
func (pm *PrometheusMetrics) IncrementRuns() {
	pm.runsTotal.Inc()
}

// GetUptime returns time since the metrics instance was created.
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// Global instance for easy access
var globalMetrics *PrometheusMetrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global Prometheus metrics instance
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}

// Ensure that PrometheusMetrics implements Recorder.
var _ Recorder = (*PrometheusMetrics)(nil)
