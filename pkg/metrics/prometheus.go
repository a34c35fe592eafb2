// Package metrics provides Prometheus metrics for the facecheck service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Recognition loop
	ticks          prometheus.Counter
	ticksSkipped   prometheus.Counter
	tickLatency    prometheus.Histogram
	tickFailures   *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	loopActive     prometheus.Gauge
	extractLatency prometheus.Histogram

	// Attendance
	attendanceRecorded   prometheus.Counter
	attendanceSuppressed *prometheus.CounterVec
	dailyCheckIns        prometheus.Gauge
	attendanceRate       prometheus.Gauge

	// Registry
	registrySize  prometheus.Gauge
	registrations *prometheus.CounterVec

	// Remote sink
	sinkDeliveries *prometheus.CounterVec
	sinkLatency    prometheus.Histogram

	// Relay
	relayIngest  *prometheus.CounterVec
	relayPending prometheus.Gauge

	// Outcome feed
	feedSubscribers prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository Metrics
	repositoryRecordsTotal  prometheus.Gauge
	repositoryUpdateLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Queue Metrics
	queueCapacity          *prometheus.GaugeVec
	queueSize              *prometheus.GaugeVec
	queueUtilization       *prometheus.GaugeVec
	queueEnqueued          *prometheus.CounterVec
	queueDequeued          *prometheus.CounterVec
	queueEnqueueErrors     *prometheus.CounterVec
	queueProcessingLatency *prometheus.HistogramVec

	// Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System Performance Metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "facecheck",
		subsystem:        "checkin",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
	}, labels)
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	b := m.histogramBuckets

	m.ticks = m.counter("ticks_total", "Recognition ticks executed")
	m.ticksSkipped = m.counter("ticks_skipped_total", "Ticks skipped because the previous tick was still running")
	m.tickLatency = m.histogram("tick_latency_milliseconds", "Duration of a recognition tick", b)
	m.tickFailures = m.counterVec("tick_failures_total", "Ticks downgraded to no detection", "stage")
	m.outcomes = m.counterVec("outcomes_total", "Published recognition outcomes", "kind")
	m.loopActive = m.gauge("loop_active", "1 while the recognition loop is active")
	m.extractLatency = m.histogram("extract_latency_milliseconds", "Descriptor extraction latency", b)

	m.attendanceRecorded = m.counter("attendance_recorded_total", "Attendance records appended by the loop")
	m.attendanceSuppressed = m.counterVec("attendance_suppressed_total", "Matches that did not produce a record", "reason")
	m.dailyCheckIns = m.gauge("daily_checkins", "Check-ins recorded today")
	m.attendanceRate = m.gauge("attendance_rate_percent", "Today's check-ins as a percentage of registered identities")

	m.registrySize = m.gauge("registry_size", "Registered identities")
	m.registrations = m.counterVec("registrations_total", "Registration attempts", "status")

	m.sinkDeliveries = m.counterVec("sink_deliveries_total", "Remote sink deliveries", "status")
	m.sinkLatency = m.histogram("sink_latency_milliseconds", "Remote sink request latency", b)

	m.relayIngest = m.counterVec("relay_ingest_total", "Records received on the relay endpoint", "status")
	m.relayPending = m.gauge("relay_pending", "Relay records waiting for a device")

	m.feedSubscribers = m.gauge("feed_subscribers", "Connected outcome feed clients")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")

	m.repositoryRecordsTotal = m.gauge("repository_records_total", "Attendance records held by the store")
	m.repositoryUpdateLatency = m.histogram("repository_update_latency_milliseconds", "Store write latency", b)
	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds", "Store query latency", b)

	m.queueCapacity = m.gaugeVec("queue_capacity", "Maximum queue capacity", "queue")
	m.queueSize = m.gaugeVec("queue_size", "Current queue length", "queue")
	m.queueUtilization = m.gaugeVec("queue_utilization_ratio", "Queue length over capacity", "queue")
	m.queueEnqueued = m.counterVec("queue_enqueued_total", "Items enqueued", "queue")
	m.queueDequeued = m.counterVec("queue_dequeued_total", "Items dequeued", "queue")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Rejected enqueues", "queue")
	m.queueProcessingLatency = m.histogramVec("queue_processing_latency_milliseconds", "Enqueue latency", "queue")

	m.workerActiveCount = m.gauge("worker_active_count", "Running delivery workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Delivery processing latency", b)
	m.workerErrors = m.counter("worker_errors_total", "Delivery worker errors")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint", "endpoint", "method", "error_type")
	m.errorLatency = m.histogramVec("error_latency_milliseconds", "Latency of operations that resulted in errors", "component", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Recognition loop.

// RecordTick counts an executed tick and its latency.
func RecordTick(latencyMs float64) {
	globalManager.ticks.Inc()
	globalManager.tickLatency.Observe(latencyMs)
}

// RecordTickSkipped counts a tick dropped by single-flight.
func RecordTickSkipped() {
	globalManager.ticksSkipped.Inc()
}

// RecordTickFailure counts a tick downgraded to no detection.
func RecordTickFailure(stage string) {
	globalManager.tickFailures.WithLabelValues(stage).Inc()
}

// RecordOutcome counts a published outcome by kind.
func RecordOutcome(kind string) {
	globalManager.outcomes.WithLabelValues(kind).Inc()
}

// UpdateLoopActive sets the loop activity gauge.
func UpdateLoopActive(active bool) {
	v := 0.0
	if active {
		v = 1
	}
	globalManager.loopActive.Set(v)
}

// RecordExtractLatency records descriptor extraction latency.
func RecordExtractLatency(latencyMs float64) {
	globalManager.extractLatency.Observe(latencyMs)
}

// Attendance.

// RecordAttendanceRecorded counts an appended attendance record.
func RecordAttendanceRecorded() {
	globalManager.attendanceRecorded.Inc()
}

// RecordAttendanceSuppressed counts a match that produced no record.
func RecordAttendanceSuppressed(reason string) {
	globalManager.attendanceSuppressed.WithLabelValues(reason).Inc()
}

// UpdateDailySummary sets today's check-in gauges.
func UpdateDailySummary(checkIns int, ratePercent float64) {
	globalManager.dailyCheckIns.Set(float64(checkIns))
	globalManager.attendanceRate.Set(ratePercent)
}

// Registry.

// UpdateRegistrySize sets the number of registered identities.
func UpdateRegistrySize(n int) {
	globalManager.registrySize.Set(float64(n))
}

// RecordRegistration counts a registration attempt by status.
func RecordRegistration(status string) {
	globalManager.registrations.WithLabelValues(status).Inc()
}

// Remote sink.

// RecordSinkDelivery counts a sink delivery by status and records its latency.
func RecordSinkDelivery(status string, latencyMs float64) {
	globalManager.sinkDeliveries.WithLabelValues(status).Inc()
	globalManager.sinkLatency.Observe(latencyMs)
}

// Relay.

// RecordRelayIngest counts a relay ingestion by status.
func RecordRelayIngest(status string) {
	globalManager.relayIngest.WithLabelValues(status).Inc()
}

// UpdateRelayPending sets the relay backlog.
func UpdateRelayPending(n int) {
	globalManager.relayPending.Set(float64(n))
}

// UpdateFeedSubscribers sets the number of outcome feed clients.
func UpdateFeedSubscribers(n int) {
	globalManager.feedSubscribers.Set(float64(n))
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Repository Metrics Functions.

// UpdateRepositoryRecordsTotal sets the number of stored attendance records.
func UpdateRepositoryRecordsTotal(count int) {
	globalManager.repositoryRecordsTotal.Set(float64(count))
}

// RecordRepositoryUpdateLatency records repository write latency.
func RecordRepositoryUpdateLatency(latencyMs float64) {
	globalManager.repositoryUpdateLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records repository query latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueCapacity sets the maximum capacity of the named queue.
func UpdateQueueCapacity(queue string, capacity int) {
	globalManager.queueCapacity.WithLabelValues(queue).Set(float64(capacity))
}

// UpdateQueueSize sets the length and utilization of the named queue.
func UpdateQueueSize(queue string, size, capacity int) {
	globalManager.queueSize.WithLabelValues(queue).Set(float64(size))
	if capacity > 0 {
		globalManager.queueUtilization.WithLabelValues(queue).Set(float64(size) / float64(capacity))
	}
}

// RecordQueueEnqueue counts an accepted enqueue.
func RecordQueueEnqueue(queue string) {
	globalManager.queueEnqueued.WithLabelValues(queue).Inc()
}

// RecordQueueDequeue counts a dequeue.
func RecordQueueDequeue(queue string) {
	globalManager.queueDequeued.WithLabelValues(queue).Inc()
}

// RecordQueueEnqueueError counts a rejected enqueue.
func RecordQueueEnqueueError(queue string) {
	globalManager.queueEnqueueErrors.WithLabelValues(queue).Inc()
}

// RecordQueueProcessingLatency records enqueue latency.
func RecordQueueProcessingLatency(queue string, latencyMs float64) {
	globalManager.queueProcessingLatency.WithLabelValues(queue).Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

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

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
