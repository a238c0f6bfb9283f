package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grading_submissions_total",
			Help: "Submit calls by outcome",
		},
		[]string{"outcome"},
	)

	Recalculations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grading_rank_recalculations_total",
			Help: "Exam-scoped rank recalculations",
		},
	)

	RecalculationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "grading_rank_recalculation_seconds",
			Help:    "Duration of exam-scoped rank recalculations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
	)

	RanksRewritten = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "grading_ranks_rewritten_total",
			Help: "Ranking rows whose rank changed during recalculation",
		},
	)

	InvalidationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "grading_cache_invalidation_failures_total",
			Help: "Swallowed cache invalidation failures by scope kind",
		},
		[]string{"scope"},
	)
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		Submissions,
		Recalculations,
		RecalculationDuration,
		RanksRewritten,
		InvalidationFailures,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRecalculation matches ranking.Observer.
func ObserveRecalculation(_ string, _ int, rewritten int, took time.Duration) {
	Recalculations.Inc()
	RecalculationDuration.Observe(took.Seconds())
	RanksRewritten.Add(float64(rewritten))
}
