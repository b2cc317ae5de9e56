package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Appended       *prometheus.CounterVec
	AppendFailures prometheus.Counter
	AppendLatency  prometheus.Histogram
	QueueDepth     prometheus.Gauge
	QueueDropped   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Appended: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentauth_audit_entries_appended_total",
			Help: "Audit entries appended by event type",
		}, []string{"event_type"}),
		AppendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "agentauth_audit_append_failures_total",
			Help: "Audit appends that failed to persist",
		}),
		AppendLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentauth_audit_append_duration_seconds",
			Help:    "Time to append one audit entry",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "agentauth_audit_queue_depth",
			Help: "Audit events waiting to be appended",
		}),
		QueueDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "agentauth_audit_queue_dropped_total",
			Help: "Audit events evicted from a full queue",
		}),
	}
}

func (m *Metrics) IncrementAppended(eventType string) {
	if m == nil {
		return
	}
	m.Appended.WithLabelValues(eventType).Inc()
}

func (m *Metrics) IncrementAppendFailures() {
	if m == nil {
		return
	}
	m.AppendFailures.Inc()
}

func (m *Metrics) ObserveAppendLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.AppendLatency.Observe(d.Seconds())
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

func (m *Metrics) IncrementDropped() {
	if m == nil {
		return
	}
	m.QueueDropped.Inc()
}
