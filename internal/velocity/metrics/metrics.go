package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks      *prometheus.CounterVec
	RiskScore   prometheus.Histogram
	StoreErrors *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentauth_velocity_checks_total",
			Help: "Velocity checks by recommendation",
		}, []string{"recommendation"}),
		RiskScore: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentauth_velocity_risk_score",
			Help:    "Distribution of velocity risk scores",
			Buckets: []float64{0, 5, 10, 15, 25, 35, 50, 75, 100},
		}),
		StoreErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentauth_velocity_store_errors_total",
			Help: "Velocity state store failures by operation",
		}, []string{"op"}),
	}
}

func (m *Metrics) ObserveCheck(recommendation string, score float64) {
	if m == nil {
		return
	}
	m.Checks.WithLabelValues(recommendation).Inc()
	m.RiskScore.Observe(score)
}

func (m *Metrics) IncrementStoreErrors(op string) {
	if m == nil {
		return
	}
	m.StoreErrors.WithLabelValues(op).Inc()
}
