// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "triage_worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "triage_worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	TriageRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_requests_total",
			Help: "Triage requests by query type and response type",
		},
		[]string{"query_type", "response_type"},
	)

	EmergenciesDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_emergencies_detected_total",
			Help: "Queries with at least one emergency indicator, by detected language",
		},
		[]string{"language"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"stage"},
	)

	RetrievalFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_retrieval_failures_total",
			Help: "Retrieval calls that failed, by backend and error code",
		},
		[]string{"backend", "error_code"},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_retrieval_cache_requests_total",
			Help: "Retrieval cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	EscalationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_escalations_sent_total",
			Help: "Emergency escalation messages sent, by channel and status",
		},
		[]string{"channel", "status"},
	)
)
