package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for scheduled runs.
type Metrics struct {
	Runs           *prometheus.CounterVec
	TenantErrors   prometheus.Counter
	ClientsUpdated prometheus.Counter
	RunDuration    prometheus.Histogram
}

// New creates a Metrics instance with all refresh metrics registered.
func New() *Metrics {
	return &Metrics{
		Runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attest_refresh_runs_total",
			Help: "Total compliance refresh runs by terminal status",
		}, []string{"status"}),

		TenantErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_refresh_tenant_errors_total",
			Help: "Total tenants that failed within otherwise successful runs",
		}),

		ClientsUpdated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "attest_refresh_clients_updated_total",
			Help: "Total client scores written by refresh runs",
		}),

		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attest_refresh_run_duration_seconds",
			Help:    "Duration of full refresh runs",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		}),
	}
}

func (m *Metrics) IncrementRun(status string) {
	if m != nil {
		m.Runs.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) AddTenantErrors(n int) {
	if m != nil {
		m.TenantErrors.Add(float64(n))
	}
}

func (m *Metrics) AddClientsUpdated(n int) {
	if m != nil {
		m.ClientsUpdated.Add(float64(n))
	}
}

func (m *Metrics) ObserveRunDuration(d time.Duration) {
	if m != nil {
		m.RunDuration.Observe(d.Seconds())
	}
}
