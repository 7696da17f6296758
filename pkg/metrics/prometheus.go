// Package metrics provides Prometheus metrics for the score-import pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector the pipeline reports to.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	registry         prometheus.Registerer

	// Import outcomes
	recordsProcessed *prometheus.CounterVec // by outcome type
	recordsSkipped   *prometheus.CounterVec // by reason
	importDuration   prometheus.Histogram
	importsAborted   prometheus.Counter

	// Insert queue
	scoresInserted prometheus.Counter
	flushSize      prometheus.Histogram
	flushErrors    prometheus.Counter

	// Orphans
	orphansCreated   prometheus.Counter
	orphansResolved  *prometheus.CounterVec // by trigger
	orphanReimports  *prometheus.CounterVec // by result
	orphanQueueUsers prometheus.Histogram

	// Goals
	goalUpdates    prometheus.Counter
	goalsAchieved  prometheus.Counter
	goalEvalErrors prometheus.Counter
	webhookEvents  *prometheus.CounterVec // by status

	// Background jobs
	jobQueueSize      prometheus.Gauge
	jobQueueCapacity  prometheus.Gauge
	jobEnqueueErrors  prometheus.Counter
	jobsProcessed     *prometheus.CounterVec // by kind
	jobErrors         *prometheus.CounterVec // by kind
	workerActiveCount prometheus.Gauge

	errorsByComponent *prometheus.CounterVec
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // keeps default Go collectors out

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager. By default it registers on the
// Prometheus default registerer; the package-level helpers use a private one.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "scorepipe",
		subsystem:        "import",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
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

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	if !m.enabled {
		// Private registry: collectors work but are never scraped.
		m.registry = prometheus.NewRegistry()
	}
	sizeBuckets := []float64{1, 5, 10, 50, 100, 250, 500, 1000}

	m.recordsProcessed = m.counterVec("records_processed_total",
		"Records that produced an import outcome, by outcome type", "type")
	m.recordsSkipped = m.counterVec("records_skipped_total",
		"Records dropped without an outcome (skip-score, blacklist, duplicates)", "reason")
	m.importDuration = m.histogram("duration_seconds",
		"Wall time of a full import run", m.histogramBuckets)
	m.importsAborted = m.counter("aborted_total",
		"Imports that stopped early because the record stream failed or was cancelled")

	m.scoresInserted = m.counter("scores_inserted_total",
		"Score documents persisted by the insert queue")
	m.flushSize = m.histogram("queue_flush_size",
		"Number of documents written per insert queue flush", sizeBuckets)
	m.flushErrors = m.counter("queue_flush_errors_total",
		"Insert queue flushes that failed at the store")

	m.orphansCreated = m.counter("orphans_created_total",
		"Orphan scores stored for charts the catalog does not know")
	m.orphansResolved = m.counterVec("orphans_resolved_total",
		"Orphan fingerprints resolved, by trigger", "trigger")
	m.orphanReimports = m.counterVec("orphan_reimports_total",
		"Deferred orphan re-imports, by result", "result")
	m.orphanQueueUsers = m.histogram("orphan_corroborating_users",
		"Distinct users attached to an orphan fingerprint after a submission", sizeBuckets)

	m.goalUpdates = m.counter("goal_updates_total",
		"Goal subscriptions written after re-evaluation")
	m.goalsAchieved = m.counter("goals_achieved_total",
		"Goal subscriptions that transitioned to achieved")
	m.goalEvalErrors = m.counter("goal_evaluation_errors_total",
		"Goals skipped because progress evaluation failed")
	m.webhookEvents = m.counterVec("webhook_events_total",
		"Webhook events emitted, by status", "status")

	m.jobQueueSize = m.gauge("job_queue_size", "Background jobs waiting for a worker")
	m.jobQueueCapacity = m.gauge("job_queue_capacity", "Capacity of the background job queue")
	m.jobEnqueueErrors = m.counter("job_enqueue_errors_total", "Background jobs rejected by the queue")
	m.jobsProcessed = m.counterVec("jobs_processed_total", "Background jobs completed, by kind", "kind")
	m.jobErrors = m.counterVec("job_errors_total", "Background jobs that failed, by kind", "kind")
	m.workerActiveCount = m.gauge("workers_active", "Background workers running")

	m.errorsByComponent = m.counterVec("errors_total",
		"Errors by component and error type", "component", "error_type")
}

// RecordOutcome counts one per-record import outcome.
func RecordOutcome(outcomeType string) {
	globalManager.recordsProcessed.WithLabelValues(outcomeType).Inc()
}

// RecordSkip counts a record dropped without producing an outcome.
func RecordSkip(reason string) {
	globalManager.recordsSkipped.WithLabelValues(reason).Inc()
}

// RecordImportDuration observes a full import run.
func RecordImportDuration(seconds float64) {
	globalManager.importDuration.Observe(seconds)
}

// RecordImportAborted counts an import that stopped early.
func RecordImportAborted() {
	globalManager.importsAborted.Inc()
}

// RecordFlush observes a successful insert queue flush.
func RecordFlush(inserted int) {
	globalManager.flushSize.Observe(float64(inserted))
	globalManager.scoresInserted.Add(float64(inserted))
}

// RecordFlushError counts a failed insert queue flush.
func RecordFlushError() {
	globalManager.flushErrors.Inc()
	RecordErrorByComponent("insert_queue", "flush")
}

// RecordOrphanCreated counts a new orphan score and observes its corroboration count.
func RecordOrphanCreated(users int) {
	globalManager.orphansCreated.Inc()
	globalManager.orphanQueueUsers.Observe(float64(users))
}

// RecordOrphanResolved counts a resolved fingerprint.
func RecordOrphanResolved(trigger string) {
	globalManager.orphansResolved.WithLabelValues(trigger).Inc()
}

// RecordOrphanReimport counts a deferred re-import attempt.
func RecordOrphanReimport(result string) {
	globalManager.orphanReimports.WithLabelValues(result).Inc()
}

// RecordGoalUpdates counts written subscriptions and new achievements.
func RecordGoalUpdates(written, achieved int) {
	globalManager.goalUpdates.Add(float64(written))
	globalManager.goalsAchieved.Add(float64(achieved))
}

// RecordGoalEvaluationError counts a goal skipped due to an evaluation failure.
func RecordGoalEvaluationError() {
	globalManager.goalEvalErrors.Inc()
}

// RecordWebhookEvent counts an emitted webhook event.
func RecordWebhookEvent(status string) {
	globalManager.webhookEvents.WithLabelValues(status).Inc()
}

// UpdateJobQueueSize sets the current number of queued background jobs.
func UpdateJobQueueSize(size int) {
	globalManager.jobQueueSize.Set(float64(size))
}

// UpdateJobQueueCapacity sets the background queue capacity.
func UpdateJobQueueCapacity(capacity int) {
	globalManager.jobQueueCapacity.Set(float64(capacity))
}

// RecordJobEnqueueError counts a rejected background job.
func RecordJobEnqueueError(reason string) {
	globalManager.jobEnqueueErrors.Inc()
	RecordErrorByComponent("job_queue", reason)
}

// RecordJobProcessed counts a completed background job.
func RecordJobProcessed(kind string) {
	globalManager.jobsProcessed.WithLabelValues(kind).Inc()
}

// RecordJobError counts a failed background job.
func RecordJobError(kind string) {
	globalManager.jobErrors.WithLabelValues(kind).Inc()
	RecordErrorByComponent("worker", kind)
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordErrorByComponent counts an error by component and type.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the registry backing the package-level helpers.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
