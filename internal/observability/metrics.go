package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "medcrew",
		Name:      "stage_duration_seconds",
		Help:      "Time spent in a pipeline stage, retries included.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
	}, []string{"stage"})

	StageFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medcrew",
		Name:      "stage_failures_total",
		Help:      "Stages that failed after their last attempt.",
	}, []string{"stage"})

	CompletionCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medcrew",
		Name:      "completion_calls_total",
		Help:      "Calls to the completion service by provider and outcome.",
	}, []string{"provider", "outcome"})

	CompletionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "medcrew",
		Name:      "completion_cache_hits_total",
		Help:      "Completions served from the response cache.",
	})

	BatchRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "medcrew",
		Name:      "batch_rows_total",
		Help:      "Batch evaluation rows by outcome.",
	}, []string{"outcome"})
)
