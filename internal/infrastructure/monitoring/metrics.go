package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Collectors live on a private
// registry so several instances can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Run metrics
	RunsTotal    *prometheus.CounterVec
	RunDuration  *prometheus.HistogramVec
	OpsPerSecond prometheus.Histogram
	RunsActive   prometheus.Gauge
	Cancels      prometheus.Counter

	// Harness metrics
	ContextsAvailable prometheus.Gauge
	DependencyFetches *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for JSON API
	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON stats endpoint
type Snapshot struct {
	TotalRequests int64   `json:"total_requests"`
	TotalErrors   int64   `json:"total_errors"`
	RunsStarted   int64   `json:"runs_started"`
	RunsSucceeded int64   `json:"runs_succeeded"`
	RunsFailed    int64   `json:"runs_failed"`
	RunsActive    int64   `json:"runs_active"`
	WSConnections int64   `json:"ws_connections"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsbench_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jsbench_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsbench_runs_total",
				Help: "Completed runs by mode and terminal status",
			},
			[]string{"mode", "status", "error_kind"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jsbench_run_duration_seconds",
				Help:    "Wall time of a run including setup and warm-up",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"mode"},
		),
		OpsPerSecond: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "jsbench_ops_per_second",
				Help:    "Throughput reported by successful benchmark runs",
				Buckets: prometheus.ExponentialBuckets(1, 10, 10),
			},
		),
		RunsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jsbench_runs_active",
				Help: "Runs currently in flight",
			},
		),
		Cancels: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jsbench_cancels_total",
				Help: "Runs cancelled by an operator",
			},
		),

		ContextsAvailable: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jsbench_contexts_available",
				Help: "Idle execution contexts in the pool",
			},
		),
		DependencyFetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsbench_dependency_fetches_total",
				Help: "Dependency source fetches by result",
			},
			[]string{"result"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jsbench_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jsbench_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "jsbench_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler serves the private registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RunStarted marks a run as in flight
func (m *Metrics) RunStarted() {
	m.RunsActive.Inc()
	m.mu.Lock()
	m.snapshot.RunsStarted++
	m.snapshot.RunsActive++
	m.mu.Unlock()
}

// RunFinished records a terminal run. errorKind is empty on success.
func (m *Metrics) RunFinished(mode, status, errorKind string, duration time.Duration) {
	m.RunsActive.Dec()
	m.RunsTotal.WithLabelValues(mode, status, errorKind).Inc()
	m.RunDuration.WithLabelValues(mode).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.RunsActive--
	if errorKind == "" {
		m.snapshot.RunsSucceeded++
	} else {
		m.snapshot.RunsFailed++
	}
	m.mu.Unlock()
}

// ObserveThroughput records ops/sec of a successful benchmark
func (m *Metrics) ObserveThroughput(opsPerSecond float64) {
	m.OpsPerSecond.Observe(opsPerSecond)
}

// IncCancels counts an operator cancellation
func (m *Metrics) IncCancels() {
	m.Cancels.Inc()
}

// SetContextsAvailable sets the number of idle execution contexts
func (m *Metrics) SetContextsAvailable(n int) {
	m.ContextsAvailable.Set(float64(n))
}

// RecordDependencyFetch counts a dependency fetch by result ("ok", "cached", "error", "blocked")
func (m *Metrics) RecordDependencyFetch(result string) {
	m.DependencyFetches.WithLabelValues(result).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.WSConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.WSConnections--
	m.mu.Unlock()
}

// Snapshot returns current counter values
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.snapshot
	s.UptimeSeconds = time.Since(m.startTime).Seconds()
	return s
}
