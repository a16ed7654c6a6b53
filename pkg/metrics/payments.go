package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics tracks payment state machine activity.
type PaymentMetrics struct {
	transitions *prometheus.CounterVec
	unhandled   *prometheus.CounterVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_transitions_total",
		Help: "Payment status transitions by source, target and outcome.",
	}, []string{"from", "to", "outcome"})
	unhandled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_unhandled_transitions_total",
		Help: "Transitions with no defined handling, routed to the unhandled hook.",
	}, []string{"from", "to"})
	reg.MustRegister(transitions, unhandled)
	return &PaymentMetrics{transitions: transitions, unhandled: unhandled}
}

func (m *PaymentMetrics) IncTransition(from, to, outcome string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to), normalizeLabel(outcome)).Inc()
}

func (m *PaymentMetrics) IncUnhandled(from, to string) {
	if m == nil || m.unhandled == nil {
		return
	}
	m.unhandled.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}
