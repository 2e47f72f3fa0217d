// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "worker_job_duration_seconds",
			Help:    "Duration of job processing in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)

	// Ranking outcomes

	CandidatesEvaluated = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ranking_candidates_evaluated",
			Help:    "Candidates submitted per ranking request",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"outcome"}, // eligible | gated
	)

	ColdStartExposures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ranking_cold_start_exposures_total",
			Help: "Cold-start operators placed in a returned ranking",
		},
	)

	PaidBoostApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ranking_paid_boost_applied_total",
			Help: "Ranked operators whose paid boost passed the trust gate",
		},
	)

	DiversityCapSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ranking_diversity_cap_suppressed_total",
			Help: "Operators dropped because they hit the per-session exposure cap",
		},
	)

	UrgencyBand = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urgency_band_total",
			Help: "Scored jobs by urgency band",
		},
		[]string{"band"},
	)

	UrgencyAlertsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "urgency_alerts_sent_total",
			Help: "Urgency alerts delivered by channel",
		},
		[]string{"channel", "status"},
	)

	BackhaulProbability = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backhaul_probability",
			Help:    "Distribution of estimated backhaul probabilities",
			Buckets: prometheus.LinearBuckets(0.05, 0.1, 10),
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ranking_cache_lookups_total",
			Help: "Cache lookups by key family and result",
		},
		[]string{"family", "result"}, // hit | miss | error
	)
)
