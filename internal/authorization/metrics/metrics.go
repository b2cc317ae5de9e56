package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the authorization hot path and its persistence queue.
type Metrics struct {
	Decisions       *prometheus.CounterVec
	DecisionLatency prometheus.Histogram
	PersistQueue    prometheus.Gauge
	Persisted       *prometheus.CounterVec
	PersistRetries  prometheus.Counter
	PersistDropped  *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentauth_authorization_decisions_total",
			Help: "Authorization decisions by decision and reason",
		}, []string{"decision", "reason"}),
		DecisionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentauth_authorization_decision_duration_seconds",
			Help:    "Time to reach an authorization decision",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		PersistQueue: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentauth_authorization_persist_queue_depth",
			Help: "Durable writes waiting to be flushed",
		}),
		Persisted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentauth_authorization_persisted_total",
			Help: "Durable writes applied by kind",
		}, []string{"kind"}),
		PersistRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "agentauth_authorization_persist_retries_total",
			Help: "Durable writes requeued after a failure",
		}),
		PersistDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentauth_authorization_persist_dropped_total",
			Help: "Durable writes abandoned, by cause (overflow, exhausted)",
		}, []string{"cause"}),
	}
}

func (m *Metrics) ObserveDecision(decision, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(decision, reason).Inc()
	m.DecisionLatency.Observe(d.Seconds())
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.PersistQueue.Set(float64(n))
}

func (m *Metrics) AddPersisted(kind string, n int) {
	if m == nil {
		return
	}
	m.Persisted.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) IncrementRetries() {
	if m == nil {
		return
	}
	m.PersistRetries.Inc()
}

func (m *Metrics) IncrementDropped(cause string) {
	if m == nil {
		return
	}
	m.PersistDropped.WithLabelValues(cause).Inc()
}
