// Package observability exposes Prometheus metrics for the analysis engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the engine's Prometheus collectors.
type Metrics struct {
	JobsProcessed  *prometheus.CounterVec
	JobRetries     prometheus.Counter
	StepDuration   *prometheus.HistogramVec
	MatchesFound   prometheus.Histogram
	DecisionsTotal *prometheus.CounterVec
	FinalScore     prometheus.Histogram
}

// NewMetrics creates and registers the collectors on the given registerer.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		JobsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaguard_jobs_processed_total",
			Help: "Analysis jobs reaching a terminal status, by status.",
		}, []string{"status"}),
		JobRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediaguard_job_retries_total",
			Help: "Transient-failure retries across all jobs.",
		}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mediaguard_step_duration_seconds",
			Help:    "Duration of each pipeline step.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step"}),
		MatchesFound: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mediaguard_matches_found",
			Help:    "Hash matches found per job.",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
		}),
		DecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mediaguard_decisions_total",
			Help: "Response engine decisions, by action.",
		}, []string{"action"}),
		FinalScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mediaguard_final_risk_score",
			Help:    "Distribution of fused final risk scores.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
	}

	collectors := []prometheus.Collector{
		m.JobsProcessed, m.JobRetries, m.StepDuration,
		m.MatchesFound, m.DecisionsTotal, m.FinalScore,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewTestMetrics creates metrics on a private registry for tests.
func NewTestMetrics() *Metrics {
	m, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		panic(err)
	}
	return m
}
