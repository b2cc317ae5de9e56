package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for consent lookups.
type Metrics struct {
	Lookups       *prometheus.CounterVec
	StoreLatency  prometheus.Histogram
	Invalidations prometheus.Counter
}

// New registers consent metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "agentauth_consent_lookups_total",
			Help: "Consent lookups by result",
		}, []string{"result"}), // result: "hit", "miss", "not_found", "unavailable"

		StoreLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "agentauth_consent_store_duration_seconds",
			Help:    "Duration of durable consent store reads on cache miss",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		Invalidations: f.NewCounter(prometheus.CounterOpts{
			Name: "agentauth_consent_cache_invalidations_total",
			Help: "Consent cache invalidations (revocations)",
		}),
	}
}

func (m *Metrics) IncrementLookup(result string) {
	if m != nil {
		m.Lookups.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) ObserveStoreLatency(d time.Duration) {
	if m != nil {
		m.StoreLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncrementInvalidations() {
	if m != nil {
		m.Invalidations.Inc()
	}
}
