// Package metrics provides Prometheus metrics for the courtside leaderboard service.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ingestion outcomes used as the "result" label.
const (
	ResultApplied   = "applied"
	ResultDuplicate = "duplicate"
	ResultIgnored   = "ignored"
	ResultRejected  = "rejected"
	ResultFailed    = "failed"
	ResultSkipped   = "skipped"
)

var latencyBucketsMs = []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000} //nolint:gochecknoglobals // shared bucket layout

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Ingestion
	eventsIngested    *prometheus.CounterVec
	pointsAwarded     prometheus.Counter
	versionConflicts  prometheus.Counter
	retriesExhausted  prometheus.Counter
	applyLatency      prometheus.Histogram
	profileUpdates    prometheus.Counter
	totalPlayers      prometheus.Gauge
	appliedEvents     prometheus.Gauge
	achievementsTotal *prometheus.CounterVec

	// Ranking and resets
	rankQueryLatency *prometheus.HistogramVec
	resets           *prometheus.CounterVec
	lastResetUnix    *prometheus.GaugeVec
	recomputeLatency prometheus.Histogram
	statsCache       *prometheus.CounterVec

	// HTTP Performance Metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository
	storeOpLatency *prometheus.HistogramVec
	storeErrors    *prometheus.CounterVec

	// Queue Metrics
	queueCapacity          prometheus.Gauge
	queueSize              prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Worker Metrics
	workerActiveCount       prometheus.Gauge
	workerMessagesPerSecond prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Subscriber
	subscriberMessages *prometheus.CounterVec

	// Error Metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
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

// Initialize global metrics.
func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "courtside",
		subsystem:        "leaderboard",
		histogramBuckets: latencyBucketsMs,
		enabled:          true,
		customLabels:     make(map[string]string),
		metricPrefix:     "",
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		m.registry = nil // promauto skips registration on a nil registerer
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	})
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels, Buckets: m.histogramBuckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help,
		ConstLabels: m.customLabels, Buckets: m.histogramBuckets,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	m.eventsIngested = m.counterVec("events_ingested_total", "Progress events by ingestion result", "result")
	m.pointsAwarded = m.counter("points_awarded_total", "Total all-time points added by applied events")
	m.versionConflicts = m.counter("version_conflicts_total", "Optimistic concurrency conflicts that caused a retry")
	m.retriesExhausted = m.counter("retries_exhausted_total", "Events rejected after the retry bound was reached")
	m.applyLatency = m.histogram("apply_latency_milliseconds", "Latency of applying one progress event")
	m.profileUpdates = m.counter("profile_updates_total", "Player profile updates applied")
	m.totalPlayers = m.gauge("players_total", "Number of leaderboard entries")
	m.appliedEvents = m.gauge("applied_events", "Event ids held in the applied-event ledger")
	m.achievementsTotal = m.counterVec("achievements_awarded_total", "Achievements awarded by type", "type")

	m.rankQueryLatency = m.histogramVec("rank_query_latency_milliseconds", "Latency of rank and list queries", "op")
	m.resets = m.counterVec("window_resets_total", "Window reset attempts", "window", "trigger", "result")
	m.lastResetUnix = m.gaugeVec("window_last_reset_unixtime", "Unix time of the last applied window reset", "window")
	m.recomputeLatency = m.histogram("recompute_latency_milliseconds", "Latency of full ranking recomputes")
	m.statsCache = m.counterVec("stats_cache_total", "Stats cache lookups", "result")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		"endpoint", "method", "status_code")

	m.storeOpLatency = m.histogramVec("repository_operation_latency_milliseconds", "Store operation latency", "op")
	m.storeErrors = m.counterVec("repository_errors_total", "Store operation errors", "op")

	m.queueCapacity = m.gauge("queue_capacity", "Maximum capacity of the evaluation queue")
	m.queueSize = m.gauge("queue_size", "Current number of queued evaluation jobs")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (0.0 to 1.0)")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Total number of jobs enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Total number of jobs dequeued")
	m.queueEnqueueErrors = m.counter("queue_enqueue_errors_total", "Total number of enqueue errors")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds", "Queue enqueue latency in milliseconds")

	m.workerActiveCount = m.gauge("worker_active_count", "Number of running evaluation workers")
	m.workerMessagesPerSecond = m.gauge("worker_messages_per_second", "Average jobs processed per second")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker job latency in milliseconds")
	m.workerErrorRate = m.counter("worker_errors_total", "Total number of worker errors")

	m.subscriberMessages = m.counterVec("subscriber_messages_total", "Broker messages handled", "channel", "result")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component and type", "component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Errors by type and severity", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "System memory usage in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds")
}

// RecordEventIngested counts one progress event with its outcome.
func RecordEventIngested(result string) {
	globalManager.eventsIngested.WithLabelValues(result).Inc()
}

// RecordPointsAwarded adds the all-time points of an applied event.
func RecordPointsAwarded(points int64) {
	if points > 0 {
		globalManager.pointsAwarded.Add(float64(points))
	}
}

// RecordVersionConflict counts one optimistic concurrency retry.
func RecordVersionConflict() {
	globalManager.versionConflicts.Inc()
}

// RecordRetriesExhausted counts an event that ran out of retries.
func RecordRetriesExhausted() {
	globalManager.retriesExhausted.Inc()
}

// RecordApplyLatency records applyDelta latency in milliseconds.
func RecordApplyLatency(latencyMs float64) {
	globalManager.applyLatency.Observe(latencyMs)
}

// RecordProfileUpdate counts an applied profile update.
func RecordProfileUpdate() {
	globalManager.profileUpdates.Inc()
}

// UpdateTotalPlayers sets the number of leaderboard entries.
func UpdateTotalPlayers(count int) {
	globalManager.totalPlayers.Set(float64(count))
}

// UpdateAppliedEvents publishes the size of the applied-event ledger.
func UpdateAppliedEvents(count int64) {
	globalManager.appliedEvents.Set(float64(count))
}

// RecordAchievementAwarded counts a newly awarded achievement.
func RecordAchievementAwarded(kind string) {
	globalManager.achievementsTotal.WithLabelValues(kind).Inc()
}

// RecordRankQueryLatency records a rank or list query latency.
func RecordRankQueryLatency(op string, latencyMs float64) {
	globalManager.rankQueryLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordReset counts a reset attempt; applied resets also move the last-reset gauge.
func RecordReset(window, trigger string, applied bool, at time.Time) {
	result := ResultSkipped
	if applied {
		result = ResultApplied
		globalManager.lastResetUnix.WithLabelValues(window).Set(float64(at.Unix()))
	}
	globalManager.resets.WithLabelValues(window, trigger, result).Inc()
}

// RecordRecomputeLatency records a full recompute duration.
func RecordRecomputeLatency(latencyMs float64) {
	globalManager.recomputeLatency.Observe(latencyMs)
}

// RecordStatsCache counts a stats cache hit or miss.
func RecordStatsCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	globalManager.statsCache.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordStoreOperation records a store operation latency and its failure, if any.
func RecordStoreOperation(op string, latencyMs float64, err error) {
	globalManager.storeOpLatency.WithLabelValues(op).Observe(latencyMs)
	if err != nil {
		globalManager.storeErrors.WithLabelValues(op).Inc()
	}
}

// Queue Metrics Functions.

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
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of active workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerMessagesPerSecond sets the average jobs processed per second.
func UpdateWorkerMessagesPerSecond(rate float64) {
	globalManager.workerMessagesPerSecond.Set(rate)
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// RecordSubscriberMessage counts a broker message by channel and outcome.
func RecordSubscriberMessage(channel, result string) {
	globalManager.subscriberMessages.WithLabelValues(channel, result).Inc()
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

// RegisterCollector adds an external collector (e.g. a DB pool collector) to
// the service registry. Registering the same collector twice is not an error.
func RegisterCollector(c prometheus.Collector) error {
	if err := customRegistry.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrRegisterFailed, err)
	}
	return nil
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

// Since returns milliseconds elapsed since start, the unit every latency metric uses.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}
