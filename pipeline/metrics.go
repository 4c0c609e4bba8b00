package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline run counters
type Metrics struct {
	RunsTotal            *prometheus.CounterVec
	RatesPersistedTotal  *prometheus.CounterVec
	AdapterFailuresTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline metrics
// with the given registerer
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RunsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_runs_total",
				Help: "Completed pipeline runs by terminal outcome",
			},
			[]string{"outcome"},
		),
		RatesPersistedTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_rates_persisted_total",
				Help: "Exchange rate records persisted, by source",
			},
			[]string{"source"},
		),
		AdapterFailuresTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "pipeline_adapter_failures_total",
				Help: "Quote adapter failures, by adapter",
			},
			[]string{"adapter"},
		),
	}
}

func (m *Metrics) observeRun(outcome Status) {
	if m == nil {
		return
	}

	m.RunsTotal.WithLabelValues(outcome.String()).Inc()
}

func (m *Metrics) observePersisted(source string) {
	if m == nil {
		return
	}

	m.RatesPersistedTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) observeAdapterFailure(adapter string) {
	if m == nil {
		return
	}

	m.AdapterFailuresTotal.WithLabelValues(adapter).Inc()
}
