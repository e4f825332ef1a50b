package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for client evaluations.
type Metrics struct {
	// Evaluation outcomes by level
	ScoreLevel *prometheus.CounterVec

	// Per-client evaluation latency
	EvaluateLatency prometheus.Histogram
}

// New creates a Metrics instance with all scoring metrics registered.
func New() *Metrics {
	return &Metrics{
		ScoreLevel: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_scoring_levels_total",
			Help: "Total client evaluations by resulting compliance level",
		}, []string{"level"}),

		EvaluateLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attest_scoring_evaluate_duration_seconds",
			Help:    "Duration of a single client evaluation including fact loading",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementLevel records an evaluation outcome.
func (m *Metrics) IncrementLevel(level string) {
	if m != nil {
		m.ScoreLevel.WithLabelValues(level).Inc()
	}
}

// ObserveEvaluateLatency records a client evaluation duration.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}
