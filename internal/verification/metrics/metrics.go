package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Redemptions *prometheus.CounterVec
	Latency     prometheus.Histogram
	Fallbacks   prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Redemptions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentauth_verification_redemptions_total",
			Help: "Authorization code redemptions by result",
		}, []string{"result"}), // result: "valid" or the failure reason
		Latency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentauth_verification_duration_seconds",
			Help:    "Time to redeem an authorization code",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		Fallbacks: f.NewCounter(prometheus.CounterOpts{
			Name: "agentauth_verification_store_fallbacks_total",
			Help: "Codes resolved from the durable store because the code table missed",
		}),
	}
}

func (m *Metrics) ObserveRedemption(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Redemptions.WithLabelValues(result).Inc()
	m.Latency.Observe(d.Seconds())
}

func (m *Metrics) IncrementFallback() {
	if m == nil {
		return
	}
	m.Fallbacks.Inc()
}
