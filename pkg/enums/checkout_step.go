package enums

// CheckoutStep is the persisted cursor of the post-order checkout workflow.
type CheckoutStep string

const (
	// CheckoutStepOrderCreated means the order exists but some stock has not been committed.
	CheckoutStepOrderCreated CheckoutStep = "order_created"
	// CheckoutStepStockCommitted means every line item was decremented at the product service.
	CheckoutStepStockCommitted CheckoutStep = "stock_committed"
	// CheckoutStepNeedsAttention means automated stock commit retries were exhausted.
	CheckoutStepNeedsAttention CheckoutStep = "needs_attention"
)

var checkoutSteps = []CheckoutStep{
	CheckoutStepOrderCreated,
	CheckoutStepStockCommitted,
	CheckoutStepNeedsAttention,
}

func (s CheckoutStep) IsValid() bool { return member(checkoutSteps, s) }

func ParseCheckoutStep(value string) (CheckoutStep, error) {
	return parseExact(checkoutSteps, "checkout step", value)
}
