// Package metrics provides Prometheus metrics for the gridcast prediction service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Default metrics configuration constants.
const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the gridcast service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	registry         prometheus.Registerer

	// Ensemble metrics
	predictions    *prometheus.CounterVec
	unitFailures   *prometheus.CounterVec
	fallbackTotal  prometheus.Counter
	combineLatency prometheus.Histogram

	// Lifecycle metrics
	modelLoaded        prometheus.Gauge
	retrains           prometheus.Counter
	promotions         prometheus.Counter
	rollbacks          prometheus.Counter
	validationFailures prometheus.Counter
	outcomeRecords     prometheus.Counter
	lastOverallAcc     prometheus.Gauge

	// Live broadcast metrics
	activeSessions     prometheus.Gauge
	subscribers        prometheus.Gauge
	broadcasts         prometheus.Counter
	deliveries         prometheus.Counter
	droppedSubscribers prometheus.Counter
	expiredSessions    prometheus.Counter
	snapshotErrors     prometheus.Counter
	tickLatency        prometheus.Histogram

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByComponent   *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// GetRegistry returns the registry that the global manager registers on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "gridcast",
		subsystem:        "core",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	// Ensemble metrics
	m.predictions = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "predictions_total",
			Help:      "Total number of ensemble predictions by kind (race, podium, live)",
		},
		[]string{"kind"},
	)

	m.unitFailures = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "unit_failures_total",
			Help:      "Total number of per-unit prediction failures excluded from combination",
		},
		[]string{"unit"},
	)

	m.fallbackTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "fallback_results_total",
		Help:      "Total number of combinations that fell back to the static result",
	})

	m.combineLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "combine_latency_milliseconds",
		Help:      "Ensemble combination latency in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// Lifecycle metrics
	m.modelLoaded = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "model_loaded",
		Help:      "Whether the active model set is loaded (1) or not (0)",
	})

	m.retrains = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "retrains_total",
		Help:      "Total number of retrain attempts",
	})

	m.promotions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "promotions_total",
		Help:      "Total number of model set promotions",
	})

	m.rollbacks = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "rollbacks_total",
		Help:      "Total number of model set rollbacks",
	})

	m.validationFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "validation_failures_total",
		Help:      "Total number of retrain validation failures",
	})

	m.outcomeRecords = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "outcome_records_total",
		Help:      "Total number of recorded race outcomes",
	})

	m.lastOverallAcc = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "last_overall_accuracy",
		Help:      "Overall accuracy of the most recently recorded outcome",
	})

	// Live broadcast metrics
	m.activeSessions = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "active_sessions",
		Help:      "Number of currently active live race sessions",
	})

	m.subscribers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "subscribers",
		Help:      "Number of currently connected subscribers",
	})

	m.broadcasts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "broadcasts_total",
		Help:      "Total number of prediction broadcasts",
	})

	m.deliveries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "deliveries_total",
		Help:      "Total number of per-subscriber prediction deliveries",
	})

	m.droppedSubscribers = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "dropped_subscribers_total",
		Help:      "Total number of subscribers removed after a failed delivery",
	})

	m.expiredSessions = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "expired_sessions_total",
		Help:      "Total number of sessions auto-stopped by the expiry sweep",
	})

	m.snapshotErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "snapshot_fetch_errors_total",
		Help:      "Total number of race-data snapshot fetch failures",
	})

	m.tickLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "session_tick_latency_milliseconds",
		Help:      "Latency of one monitoring loop iteration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	// HTTP metrics
	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   m.histogramBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorsByComponent = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_by_component_total",
			Help:      "Total number of errors by component",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_memory_usage_bytes",
		Help:      "System memory usage in bytes",
	})

	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_goroutine_count",
		Help:      "Number of goroutines",
	})

	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "system_gc_pause_time_milliseconds",
		Help:      "GC pause time in milliseconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
	})
}

// RecordPrediction increments the prediction counter for a combination kind.
func RecordPrediction(kind string) {
	globalManager.predictions.WithLabelValues(kind).Inc()
}

// RecordUnitFailure increments the per-unit failure counter.
func RecordUnitFailure(unit string) {
	globalManager.unitFailures.WithLabelValues(unit).Inc()
}

// RecordFallbackResult increments the fallback result counter.
func RecordFallbackResult() {
	globalManager.fallbackTotal.Inc()
}

// RecordCombineLatency records combination latency in milliseconds.
func RecordCombineLatency(latencyMs float64) {
	globalManager.combineLatency.Observe(latencyMs)
}

// UpdateModelLoaded sets the model loaded gauge.
func UpdateModelLoaded(loaded bool) {
	if loaded {
		globalManager.modelLoaded.Set(1)
		return
	}
	globalManager.modelLoaded.Set(0)
}

// RecordRetrain increments the retrain attempt counter.
func RecordRetrain() {
	globalManager.retrains.Inc()
}

// RecordPromotion increments the promotion counter.
func RecordPromotion() {
	globalManager.promotions.Inc()
}

// RecordRollback increments the rollback counter.
func RecordRollback() {
	globalManager.rollbacks.Inc()
}

// RecordValidationFailure increments the validation failure counter.
func RecordValidationFailure() {
	globalManager.validationFailures.Inc()
}

// RecordOutcome increments the outcome record counter and updates the last
// observed overall accuracy.
func RecordOutcome(overallAccuracy float64) {
	globalManager.outcomeRecords.Inc()
	globalManager.lastOverallAcc.Set(overallAccuracy)
}

// UpdateActiveSessions sets the active session gauge.
func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

// UpdateSubscribers sets the subscriber gauge.
func UpdateSubscribers(count int) {
	globalManager.subscribers.Set(float64(count))
}

// RecordBroadcast increments the broadcast counter.
func RecordBroadcast() {
	globalManager.broadcasts.Inc()
}

// RecordDelivery increments the per-subscriber delivery counter.
func RecordDelivery() {
	globalManager.deliveries.Inc()
}

// RecordDroppedSubscriber increments the dropped subscriber counter.
func RecordDroppedSubscriber() {
	globalManager.droppedSubscribers.Inc()
}

// RecordExpiredSession increments the expired session counter.
func RecordExpiredSession() {
	globalManager.expiredSessions.Inc()
}

// RecordSnapshotError increments the snapshot fetch error counter.
func RecordSnapshotError() {
	globalManager.snapshotErrors.Inc()
}

// RecordTickLatency records one monitoring loop iteration in milliseconds.
func RecordTickLatency(latencyMs float64) {
	globalManager.tickLatency.Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent increments the per-component error counter.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the memory usage gauge.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the goroutine count gauge.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}
