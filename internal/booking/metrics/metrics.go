package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request results.
const (
	ResultCreated = "created"
	ResultOverlap = "overlap"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

// Ledger intent results.
const (
	LedgerCommitted = "committed"
	LedgerReplayed  = "replayed"
	LedgerFailed    = "failed"
)

// Metrics provides observability for the booking module.
type Metrics struct {
	Requests            *prometheus.CounterVec
	Transitions         *prometheus.CounterVec
	DegradedTransitions *prometheus.CounterVec
	TransitionDuration  *prometheus.HistogramVec
	LedgerIntents       *prometheus.CounterVec
	SweeperCompletions  prometheus.Counter
}

// New registers the booking metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rentguard_booking_requests_total",
			Help: "Booking requests by result",
		}, []string{"result"}),

		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rentguard_booking_transitions_total",
			Help: "Committed booking transitions",
		}, []string{"from", "to", "transition"}),

		DegradedTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rentguard_booking_degraded_transitions_total",
			Help: "Transitions accepted on a degraded proof, by proof kind",
		}, []string{"kind"}),

		// Includes the provider round trip for verify-and-advance.
		TransitionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rentguard_booking_transition_duration_seconds",
			Help:    "Duration of transition operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"transition"}),

		LedgerIntents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rentguard_ledger_intents_total",
			Help: "Ledger intents issued by the booking service, by result",
		}, []string{"intent", "result"}),

		SweeperCompletions: f.NewCounter(prometheus.CounterOpts{
			Name: "rentguard_booking_sweeper_completions_total",
			Help: "Bookings completed by the background sweeper",
		}),
	}
}

func (m *Metrics) IncRequest(result string) {
	if m != nil {
		m.Requests.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncTransition(from, to, transition string) {
	if m != nil {
		m.Transitions.WithLabelValues(from, to, transition).Inc()
	}
}

func (m *Metrics) IncDegraded(kind string) {
	if m != nil {
		m.DegradedTransitions.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) ObserveTransition(transition string, d time.Duration) {
	if m != nil {
		m.TransitionDuration.WithLabelValues(transition).Observe(d.Seconds())
	}
}

func (m *Metrics) IncLedgerIntent(intent, result string) {
	if m != nil {
		m.LedgerIntents.WithLabelValues(intent, result).Inc()
	}
}

func (m *Metrics) IncSweeperCompletions(n int) {
	if m != nil && n > 0 {
		m.SweeperCompletions.Add(float64(n))
	}
}
