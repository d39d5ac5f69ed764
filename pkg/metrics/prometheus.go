// Package metrics provides Prometheus metrics for the podium leaderboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the podium service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Pipeline Metrics - What really matters for a live leaderboard
	observations      prometheus.Counter
	malformed         prometheus.Counter
	transitions       *prometheus.CounterVec
	pipelineLatency   prometheus.Histogram
	intentsPlanned    *prometheus.CounterVec
	deliveries        *prometheus.CounterVec
	deliveryLatency   prometheus.Histogram
	dispatchDuplicate prometheus.Counter
	logSinkErrors     *prometheus.CounterVec

	// Roster Metrics
	rosterSize      prometheus.Gauge
	rosterMutations *prometheus.CounterVec
	repoLatency     *prometheus.HistogramVec

	// Queue Metrics - Observation backlog
	queueSize          prometheus.Gauge
	queueCapacity      prometheus.Gauge
	queueUtilization   prometheus.Gauge
	queueEnqueue       prometheus.Counter
	queueDequeue       prometheus.Counter
	queueEnqueueErrors prometheus.Counter

	// Live feed
	feedClients prometheus.Gauge

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

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
		namespace:        "podium",
		subsystem:        "leaderboard",
		histogramBuckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		constLabels:      prometheus.Labels{},
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
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.observations = m.counter("observations_total", "Roster snapshots observed by the pipeline")
	m.malformed = m.counter("malformed_snapshots_total", "Roster snapshots rejected as malformed")
	m.transitions = m.counterVec("change_events_total", "Classified change events by kind and role", "kind", "role")
	m.pipelineLatency = m.histogram("pipeline_latency_milliseconds", "Classify, plan and dispatch duration per observation", m.histogramBuckets)
	m.intentsPlanned = m.counterVec("intents_planned_total", "Notification intents planned by template", "template")
	m.deliveries = m.counterVec("deliveries_total", "Delivery attempts by final status", "status", "template")
	m.deliveryLatency = m.histogram("delivery_latency_milliseconds", "Provider call duration", m.histogramBuckets)
	m.dispatchDuplicate = m.counter("dispatch_duplicates_total", "Intents skipped because their dedupe key was already attempted")
	m.logSinkErrors = m.counterVec("log_sink_errors_total", "Failed writes to the durable log sink", "operation")

	m.rosterSize = m.gauge("roster_size", "Participants currently on the leaderboard")
	m.rosterMutations = m.counterVec("roster_mutations_total", "Roster writes by operation", "operation")
	m.repoLatency = m.histogramVec("repository_latency_milliseconds", "Roster store operation latency", "operation")

	m.queueSize = m.gauge("queue_size", "Current size of the observation queue (backlog indicator)")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the observation queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Observation queue utilization ratio (size / capacity)")
	m.queueEnqueue = m.counter("queue_enqueue_total", "Observations enqueued")
	m.queueDequeue = m.counter("queue_dequeue_total", "Observations dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Observations dropped at enqueue")

	m.feedClients = m.gauge("feed_clients", "Connected live feed websocket clients")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and error type", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint, method and error type", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Pipeline Metrics Functions.

// RecordObservation increments the observed snapshot counter.
func RecordObservation() { globalManager.observations.Inc() }

// RecordMalformedSnapshot increments the malformed snapshot counter.
func RecordMalformedSnapshot() { globalManager.malformed.Inc() }

// RecordChangeEvent counts a classified event; role is "primary" or "secondary".
func RecordChangeEvent(kind, role string) {
	globalManager.transitions.WithLabelValues(kind, role).Inc()
}

// RecordPipelineLatency records one observation's end-to-end handling time.
func RecordPipelineLatency(latencyMs float64) { globalManager.pipelineLatency.Observe(latencyMs) }

// RecordIntentPlanned counts a planned notification intent.
func RecordIntentPlanned(template string) {
	globalManager.intentsPlanned.WithLabelValues(template).Inc()
}

// RecordDelivery counts a finalized delivery attempt.
func RecordDelivery(status, template string) {
	globalManager.deliveries.WithLabelValues(status, template).Inc()
}

// RecordDeliveryLatency records provider call latency.
func RecordDeliveryLatency(latencyMs float64) { globalManager.deliveryLatency.Observe(latencyMs) }

// RecordDispatchDuplicate counts an intent skipped by the dedupe key.
func RecordDispatchDuplicate() { globalManager.dispatchDuplicate.Inc() }

// RecordLogSinkError counts a failed log sink write.
func RecordLogSinkError(operation string) {
	globalManager.logSinkErrors.WithLabelValues(operation).Inc()
}

// Roster Metrics Functions.

// UpdateRosterSize sets the number of participants.
func UpdateRosterSize(count int) { globalManager.rosterSize.Set(float64(count)) }

// RecordRosterMutation counts an add, update or delete.
func RecordRosterMutation(operation string) {
	globalManager.rosterMutations.WithLabelValues(operation).Inc()
}

// RecordRepositoryLatency records a roster store operation latency.
func RecordRepositoryLatency(operation string, latencyMs float64) {
	globalManager.repoLatency.WithLabelValues(operation).Observe(latencyMs)
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueue.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeue.Inc() }

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() { globalManager.queueEnqueueErrors.Inc() }

// UpdateFeedClients sets the number of connected websocket clients.
func UpdateFeedClients(count int) { globalManager.feedClients.Set(float64(count)) }

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
