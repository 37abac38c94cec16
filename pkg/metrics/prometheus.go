// Package metrics provides Prometheus metrics for the scoreboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Latency buckets in milliseconds.
var defaultLatencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000}

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Ranking
	mutations        *prometheus.CounterVec
	pointsAdded      prometheus.Counter
	rankQueries      *prometheus.CounterVec
	rankQueryLatency *prometheus.HistogramVec
	totalUsers       prometheus.Gauge

	// Store
	storeLatency *prometheus.HistogramVec

	// HTTP
	httpRequests         *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	rateLimited          *prometheus.CounterVec
	idempotentDuplicates *prometheus.CounterVec

	// Queue
	queueCapacity     prometheus.Gauge
	queueSize         prometheus.Gauge
	queueUtilization  prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueDequeued     prometheus.Counter
	queueEnqueueError prometheus.Counter

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByType      *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// Runtime
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "scoreboard",
		subsystem:        "ranking",
		histogramBuckets: defaultLatencyBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) gauge(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: name, Help: help, ConstLabels: m.constLabels,
	}
}

func (m *Manager) histogram(name, help string) prometheus.HistogramOpts {
	return prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: name, Help: help, ConstLabels: m.constLabels,
		Buckets: m.histogramBuckets,
	}
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	auto := promauto.With(m.registry)

	m.mutations = auto.NewCounterVec(
		m.counter("mutations_total", "Score mutations by operation and result"),
		[]string{"op", "result"})
	m.pointsAdded = auto.NewCounter(
		m.counter("points_added_total", "Sum of points added through increments"))
	m.rankQueries = auto.NewCounterVec(
		m.counter("rank_queries_total", "Rank queries by operation"),
		[]string{"op"})
	m.rankQueryLatency = auto.NewHistogramVec(
		m.histogram("rank_query_latency_milliseconds", "Rank query latency in milliseconds"),
		[]string{"op"})
	m.totalUsers = auto.NewGauge(
		m.gauge("total_users", "Number of users holding a score row"))

	m.storeLatency = auto.NewHistogramVec(
		m.histogram("store_latency_milliseconds", "Score store operation latency in milliseconds"),
		[]string{"backend", "op"})

	m.httpRequests = auto.NewCounterVec(
		m.counter("http_requests_total", "HTTP requests by endpoint, method and status"),
		[]string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogram("http_request_duration_milliseconds", "HTTP request duration in milliseconds"),
		[]string{"endpoint", "method", "status_code"})
	m.rateLimited = auto.NewCounterVec(
		m.counter("rate_limited_total", "Requests rejected by the mutation rate limiter"),
		[]string{"endpoint"})
	m.idempotentDuplicates = auto.NewCounterVec(
		m.counter("idempotent_duplicates_total", "Replayed idempotency keys and event ids"),
		[]string{"source"})

	m.queueCapacity = auto.NewGauge(m.gauge("queue_capacity", "Capacity of the points queue"))
	m.queueSize = auto.NewGauge(m.gauge("queue_size", "Pending awards in the points queue"))
	m.queueUtilization = auto.NewGauge(m.gauge("queue_utilization_ratio", "Points queue fill ratio"))
	m.queueEnqueued = auto.NewCounter(m.counter("queue_enqueued_total", "Awards enqueued"))
	m.queueDequeued = auto.NewCounter(m.counter("queue_dequeued_total", "Awards dequeued"))
	m.queueEnqueueError = auto.NewCounter(m.counter("queue_enqueue_errors_total", "Rejected enqueues"))

	m.workerCount = auto.NewGauge(m.gauge("worker_count", "Running award workers"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogram("worker_processing_latency_milliseconds", "Award processing latency in milliseconds"))
	m.workerErrors = auto.NewCounter(m.counter("worker_errors_total", "Awards that failed to apply"))

	m.errorsByComponent = auto.NewCounterVec(
		m.counter("errors_by_component_total", "Errors by component and type"),
		[]string{"component", "error_type"})
	m.errorsByType = auto.NewCounterVec(
		m.counter("errors_by_type_total", "Errors by type and severity"),
		[]string{"error_type", "severity"})
	m.errorsByEndpoint = auto.NewCounterVec(
		m.counter("errors_by_endpoint_total", "Errors by endpoint, method and type"),
		[]string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(m.gauge("system_memory_bytes", "Heap memory in use"))
	m.systemGoroutineCount = auto.NewGauge(m.gauge("system_goroutines", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogram("system_gc_pause_milliseconds", "Most recent GC pause in milliseconds"))
}

// RecordMutation counts a score mutation. result is "ok" or an error kind.
func RecordMutation(op, result string) {
	globalManager.mutations.WithLabelValues(op, result).Inc()
}

// RecordPointsAdded adds to the running points total.
func RecordPointsAdded(points int64) {
	if points > 0 {
		globalManager.pointsAdded.Add(float64(points))
	}
}

// RecordRankQuery counts a rank query and observes its latency.
func RecordRankQuery(op string, latencyMs float64) {
	globalManager.rankQueries.WithLabelValues(op).Inc()
	globalManager.rankQueryLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdateTotalUsers sets the population gauge.
func UpdateTotalUsers(count int) {
	globalManager.totalUsers.Set(float64(count))
}

// RecordStoreLatency observes one store call.
func RecordStoreLatency(backend, op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(backend, op).Observe(latencyMs)
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRateLimited counts a request rejected by the limiter.
func RecordRateLimited(endpoint string) {
	globalManager.rateLimited.WithLabelValues(endpoint).Inc()
}

// RecordIdempotentDuplicate counts a replayed key. source is "header" or "event".
func RecordIdempotentDuplicate(source string) {
	globalManager.idempotentDuplicates.WithLabelValues(source).Inc()
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueError.Inc()
}

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorsByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry the global manager publishes to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
