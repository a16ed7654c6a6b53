package metrics

import "github.com/prometheus/client_golang/prometheus"

// CheckoutMetrics counts checkout outcomes and post-commit stock failures.
type CheckoutMetrics struct {
	requests     *prometheus.CounterVec
	commitFailed prometheus.Counter
	attention    prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on reg. A nil reg yields
// a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_requests_total",
		Help: "Checkout attempts by variant and outcome.",
	}, []string{"variant", "outcome"})
	commitFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_stock_commit_failures_total",
		Help: "Line items whose stock reduction failed after the order was created.",
	})
	attention := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_needs_attention_total",
		Help: "Orders moved to needs_attention after exhausting stock commit retries.",
	})
	reg.MustRegister(requests, commitFailed, attention)
	return &CheckoutMetrics{requests: requests, commitFailed: commitFailed, attention: attention}
}

func (m *CheckoutMetrics) IncRequest(variant, outcome string) {
	if m == nil || m.requests == nil {
		return
	}
	m.requests.WithLabelValues(normalizeLabel(variant), normalizeLabel(outcome)).Inc()
}

func (m *CheckoutMetrics) IncStockCommitFailure() {
	if m == nil || m.commitFailed == nil {
		return
	}
	m.commitFailed.Inc()
}

func (m *CheckoutMetrics) IncNeedsAttention() {
	if m == nil || m.attention == nil {
		return
	}
	m.attention.Inc()
}
