package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCheckoutMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)
	m.IncRequest("cart", "success")
	m.IncRequest("cart", "success")
	m.IncRequest("direct", "validation")
	m.IncStockCommitFailure()
	m.IncNeedsAttention()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("cart", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("direct", "validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.commitFailed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attention))
}

func TestPaymentAndOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPaymentMetrics(reg)
	o := NewOutboxMetrics(reg)

	p.IncTransition("INITIATED", "CAPTURED", "applied")
	p.IncUnhandled("CAPTURED", "REFUNDED")
	o.IncPublished("order_created")
	o.IncFailed("order_created")
	o.IncDLQ("payment_failed", "max_attempts")

	assert.Equal(t, 1.0, testutil.ToFloat64(p.transitions.WithLabelValues("INITIATED", "CAPTURED", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.unhandled.WithLabelValues("CAPTURED", "REFUNDED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.published.WithLabelValues("order_created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(o.dlq.WithLabelValues("payment_failed", "max_attempts")))
}

func TestNilRegistryIsNoop(t *testing.T) {
	var nilCheckout *CheckoutMetrics
	nilCheckout.IncRequest("cart", "success")
	NewCheckoutMetrics(nil).IncStockCommitFailure()
	NewPaymentMetrics(nil).IncUnhandled("a", "b")
	NewOutboxMetrics(nil).IncDLQ("x", "y")
}
