package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks       *prometheus.CounterVec
	CircuitOpen  prometheus.Gauge
	BackendError prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentauth_ratelimit_checks_total",
			Help: "Rate limit checks by outcome",
		}, []string{"outcome"}),
		CircuitOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentauth_ratelimit_circuit_open",
			Help: "1 while the rate limit backend circuit is open",
		}),
		BackendError: f.NewCounter(prometheus.CounterOpts{
			Name: "agentauth_ratelimit_backend_errors_total",
			Help: "Rate limit backend failures",
		}),
	}
}

func (m *Metrics) IncrementCheck(outcome string) {
	if m == nil {
		return
	}
	m.Checks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementBackendError() {
	if m == nil {
		return
	}
	m.BackendError.Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}
