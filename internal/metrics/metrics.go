package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EmbeddingJobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_jobs_enqueued_total",
			Help: "Embedding jobs created by the queue (duplicates excluded)",
		},
		[]string{"job_type"},
	)

	EmbeddingJobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_jobs_processed_total",
			Help: "Embedding jobs finished by workers, by outcome",
		},
		[]string{"job_type", "outcome"},
	)

	EmbeddingJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "embedding_job_duration_seconds",
			Help:    "Time spent embedding and storing one job",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job_type"},
	)

	EmbeddingBatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "embedding_batches_total",
			Help: "Batch embedding runs by terminal status",
		},
		[]string{"status"},
	)

	WeightDrift = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "matching_weight_drift",
			Help: "Absolute distance between the sum of active question weights and 1.0",
		},
	)

	RankDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "matching_rank_duration_seconds",
			Help:    "Duration of a ranking pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	CandidatesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_candidates_dropped_total",
			Help: "Photographers removed from a ranking pass, by stage",
		},
		[]string{"stage"},
	)

	IncompleteScores = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "matching_incomplete_scores_total",
			Help: "Photographers scored with at least one missing dimension vector",
		},
	)

	MatchCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "matching_cache_lookups_total",
			Help: "Result cache lookups by result",
		},
		[]string{"result"},
	)
)
