// Package metrics provides Prometheus metrics for the missiond ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Manager owns every collector the service registers.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         *prometheus.Registry

	// Ledger metrics
	submissionsAccepted  prometheus.Counter
	submissionsDuplicate prometheus.Counter
	submissionsRejected  *prometheus.CounterVec
	submitLatency        prometheus.Histogram
	missionsCompleted    prometheus.Counter
	activeMissions       prometheus.Gauge
	trackedParticipants  prometheus.Gauge

	// Repository metrics
	repositoryTxLatency    prometheus.Histogram
	repositoryQueryLatency prometheus.Histogram
	repositoryConflicts    prometheus.Counter

	// Rank index metrics
	rankIndexUpdateLatency prometheus.Histogram

	// Activity pipeline metrics
	activityQueueCapacity prometheus.Gauge
	activityQueueSize     prometheus.Gauge
	activityDropped       *prometheus.CounterVec
	activityAppends       prometheus.Counter
	activityAppendErrors  prometheus.Counter
	activityAppendLatency prometheus.Histogram

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global manager used by the package-level helpers.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager()
}

// NewManager creates a manager with default configuration and registers
// every collector on its registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "missiond",
		subsystem:        "ledger",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initialize()
	return m
}

func (m *Manager) initialize() {
	factory := func(name, help string) prometheus.CounterOpts {
		return prometheus.CounterOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
	}
	gaugeOpts := func(name, help string) prometheus.GaugeOpts {
		return prometheus.GaugeOpts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
	}
	histOpts := func(name, help string) prometheus.HistogramOpts {
		return prometheus.HistogramOpts{
			Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help,
			Buckets: m.histogramBuckets,
		}
	}

	m.submissionsAccepted = prometheus.NewCounter(factory(
		"submissions_accepted_total", "Contributions accepted and applied."))
	m.submissionsDuplicate = prometheus.NewCounter(factory(
		"submissions_duplicate_total", "Contributions acknowledged as replayed submissions."))
	m.submissionsRejected = prometheus.NewCounterVec(factory(
		"submissions_rejected_total", "Contributions rejected, by reason."), []string{"reason"})
	m.submitLatency = prometheus.NewHistogram(histOpts(
		"submit_latency_ms", "End-to-end submit latency in milliseconds."))
	m.missionsCompleted = prometheus.NewCounter(factory(
		"missions_completed_total", "Missions that reached their requirements."))
	m.activeMissions = prometheus.NewGauge(gaugeOpts(
		"active_missions", "Missions currently accepting contributions."))
	m.trackedParticipants = prometheus.NewGauge(gaugeOpts(
		"tracked_participants", "Participant rows across all leaderboard boards."))

	m.repositoryTxLatency = prometheus.NewHistogram(histOpts(
		"repository_tx_latency_ms", "Contribution transaction latency in milliseconds."))
	m.repositoryQueryLatency = prometheus.NewHistogram(histOpts(
		"repository_query_latency_ms", "Repository read latency in milliseconds."))
	m.repositoryConflicts = prometheus.NewCounter(factory(
		"repository_conflicts_total", "Transactions that lost a lock race and must be retried."))

	m.rankIndexUpdateLatency = prometheus.NewHistogram(histOpts(
		"rank_index_update_latency_ms", "Rank index upsert latency in milliseconds."))

	m.activityQueueCapacity = prometheus.NewGauge(gaugeOpts(
		"activity_queue_capacity", "Configured capacity of the activity queue."))
	m.activityQueueSize = prometheus.NewGauge(gaugeOpts(
		"activity_queue_size", "Entries buffered in the activity queue."))
	m.activityDropped = prometheus.NewCounterVec(factory(
		"activity_dropped_total", "Activity entries dropped before persistence, by reason."), []string{"reason"})
	m.activityAppends = prometheus.NewCounter(factory(
		"activity_appends_total", "Activity entries persisted."))
	m.activityAppendErrors = prometheus.NewCounter(factory(
		"activity_append_errors_total", "Activity entries that failed to persist."))
	m.activityAppendLatency = prometheus.NewHistogram(histOpts(
		"activity_append_latency_ms", "Activity append latency in milliseconds."))

	m.httpRequests = prometheus.NewCounterVec(factory(
		"http_requests_total", "HTTP requests, by endpoint, method, and status."),
		[]string{"endpoint", "method", "status"})
	m.httpRequestDuration = prometheus.NewHistogramVec(histOpts(
		"http_request_duration_ms", "HTTP request duration in milliseconds."),
		[]string{"endpoint", "method"})

	m.systemMemoryUsage = prometheus.NewGauge(gaugeOpts(
		"system_memory_bytes", "Heap bytes currently allocated."))
	m.systemGoroutineCount = prometheus.NewGauge(gaugeOpts(
		"system_goroutines", "Number of live goroutines."))

	m.registry.MustRegister(
		m.submissionsAccepted, m.submissionsDuplicate, m.submissionsRejected,
		m.submitLatency, m.missionsCompleted, m.activeMissions, m.trackedParticipants,
		m.repositoryTxLatency, m.repositoryQueryLatency, m.repositoryConflicts,
		m.rankIndexUpdateLatency,
		m.activityQueueCapacity, m.activityQueueSize, m.activityDropped,
		m.activityAppends, m.activityAppendErrors, m.activityAppendLatency,
		m.httpRequests, m.httpRequestDuration,
		m.systemMemoryUsage, m.systemGoroutineCount,
	)
}

// Registry exposes the manager's registry for the exposition handler.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// GetRegistry returns the global manager's registry.
func GetRegistry() *prometheus.Registry { return globalManager.Registry() }

// Package-level helpers against the global manager.

func RecordSubmissionAccepted()            { globalManager.submissionsAccepted.Inc() }
func RecordSubmissionDuplicate()           { globalManager.submissionsDuplicate.Inc() }
func RecordSubmissionRejected(reason string) {
	globalManager.submissionsRejected.WithLabelValues(reason).Inc()
}
func RecordSubmitLatency(ms float64)  { globalManager.submitLatency.Observe(ms) }
func RecordMissionCompleted()         { globalManager.missionsCompleted.Inc() }
func UpdateActiveMissions(n int)      { globalManager.activeMissions.Set(float64(n)) }
func UpdateTrackedParticipants(n int) { globalManager.trackedParticipants.Set(float64(n)) }

func RecordRepositoryTxLatency(ms float64)    { globalManager.repositoryTxLatency.Observe(ms) }
func RecordRepositoryQueryLatency(ms float64) { globalManager.repositoryQueryLatency.Observe(ms) }
func RecordRepositoryConflict()               { globalManager.repositoryConflicts.Inc() }

func RecordRankIndexUpdateLatency(ms float64) { globalManager.rankIndexUpdateLatency.Observe(ms) }

func UpdateActivityQueueCapacity(n int) { globalManager.activityQueueCapacity.Set(float64(n)) }
func UpdateActivityQueueSize(n int)     { globalManager.activityQueueSize.Set(float64(n)) }
func RecordActivityDropped(reason string) {
	globalManager.activityDropped.WithLabelValues(reason).Inc()
}
func RecordActivityAppend()                { globalManager.activityAppends.Inc() }
func RecordActivityAppendError()           { globalManager.activityAppendErrors.Inc() }
func RecordActivityAppendLatency(ms float64) { globalManager.activityAppendLatency.Observe(ms) }

func RecordHTTPRequest(endpoint, method, status string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, status).Inc()
}
func RecordHTTPRequestDuration(endpoint, method string, ms float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method).Observe(ms)
}

func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }
func UpdateSystemGoroutineCount(n int)     { globalManager.systemGoroutineCount.Set(float64(n)) }
