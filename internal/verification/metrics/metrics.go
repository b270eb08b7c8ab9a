package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Call outcomes recorded per gateway call.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeRetry    = "retry"
	OutcomeFallback = "fallback"
	OutcomeError    = "error"
)

// Metrics provides observability for provider gateways.
type Metrics struct {
	Calls       *prometheus.CounterVec
	Latency     *prometheus.HistogramVec
	BreakerOpen *prometheus.GaugeVec
}

// New registers the gateway metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Calls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rentguard_provider_calls_total",
			Help: "Provider gateway calls by proof kind and outcome",
		}, []string{"kind", "outcome"}),

		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rentguard_provider_call_duration_seconds",
			Help:    "Duration of a single provider attempt",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),

		BreakerOpen: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "rentguard_provider_breaker_open",
			Help: "1 while the provider circuit breaker is open",
		}, []string{"kind"}),
	}
}

func (m *Metrics) IncCall(kind, outcome string) {
	if m != nil {
		m.Calls.WithLabelValues(kind, outcome).Inc()
	}
}

func (m *Metrics) ObserveLatency(kind string, d time.Duration) {
	if m != nil {
		m.Latency.WithLabelValues(kind).Observe(d.Seconds())
	}
}

func (m *Metrics) SetBreakerOpen(kind string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.BreakerOpen.WithLabelValues(kind).Set(v)
}
