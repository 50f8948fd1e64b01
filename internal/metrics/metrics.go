// Package metrics provides Prometheus metrics for the pipeline processes.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "docfoundry"
)

// Job metrics track per-stage work.
var (
	// JobsProcessedTotal is the total number of jobs completed by stage.
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_processed_total",
		Help:      "Total number of jobs completed",
	}, []string{"stage"})

	// JobErrorsTotal is the total number of failed jobs by stage.
	JobErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_errors_total",
		Help:      "Total number of failed jobs",
	}, []string{"stage"})

	// JobDuration is a histogram of job duration in seconds by stage.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Duration of job processing in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 0.1s to ~102s
	}, []string{"stage"})
)

// Queue metrics track broker state.
var (
	// QueueDepth is the number of items waiting per queue.
	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Number of items waiting in a queue",
	}, []string{"queue"})
)

// Manager metrics track the scan-claim-dispatch loop.
var (
	// DocumentsDispatchedTotal is the total number of documents dispatched.
	DocumentsDispatchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_dispatched_total",
		Help:      "Total number of documents dispatched into the pipeline",
	})

	// DocumentsReclaimedTotal is the total number of stale documents reclaimed.
	DocumentsReclaimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "documents_reclaimed_total",
		Help:      "Total number of stale processing documents reclaimed",
	})

	// LockContentionTotal is the number of claim attempts lost to a held lock.
	LockContentionTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "lock_contention_total",
		Help:      "Total number of claim attempts that found the lock held",
	})

	// ScanDuration is a histogram of library scan duration in seconds.
	ScanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scan_duration_seconds",
		Help:      "Duration of library scans in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~41s
	})
)

// Embedder metrics track provider API usage.
var (
	// EmbedderRequestsTotal is the total number of embedding batch requests.
	EmbedderRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedder_requests_total",
		Help:      "Total number of embedding batch requests",
	}, []string{"provider"})

	// EmbedderErrorsTotal is the total number of embedding request errors.
	EmbedderErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedder_errors_total",
		Help:      "Total number of embedding request errors",
	}, []string{"provider"})

	// ChunksPerDocument is a histogram of chunk counts per document.
	ChunksPerDocument = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "chunks_per_document",
		Help:      "Number of chunks produced per document",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10), // 1 to 512
	})
)

// Process metrics track each pipeline process.
var (
	// ProcessInfo provides version and build information.
	ProcessInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_info",
		Help:      "Process version and build information",
	}, []string{"version", "go_version", "stage"})

	// ProcessStartTime is the unix timestamp when the process started.
	ProcessStartTime = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_start_time_seconds",
		Help:      "Unix timestamp when the process started",
	})

	// SupervisorRestartsTotal is the total number of child restarts by stage.
	SupervisorRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "supervisor_restarts_total",
		Help:      "Total number of child process restarts",
	}, []string{"stage"})
)

// Handler returns the Prometheus HTTP handler for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a handler for a specific registry.
func HandlerFor(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// RecordJob records one completed or failed job for a stage.
func RecordJob(stage string, duration time.Duration, err error) {
	JobDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if err != nil {
		JobErrorsTotal.WithLabelValues(stage).Inc()
		return
	}
	JobsProcessedTotal.WithLabelValues(stage).Inc()
}

// RecordEmbedderRequest records one embedding batch request.
func RecordEmbedderRequest(provider string, err error) {
	EmbedderRequestsTotal.WithLabelValues(provider).Inc()
	if err != nil {
		EmbedderErrorsTotal.WithLabelValues(provider).Inc()
	}
}
