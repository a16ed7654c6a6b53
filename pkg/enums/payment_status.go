package enums

// PaymentStatus tracks a provider payment. A payment moves from INITIATED
// to CAPTURED or FAILED; REFUNDED follows a capture.
type PaymentStatus string

const (
	PaymentStatusInitiated  PaymentStatus = "INITIATED"
	PaymentStatusAuthorized PaymentStatus = "AUTHORIZED"
	PaymentStatusCaptured   PaymentStatus = "CAPTURED"
	PaymentStatusFailed     PaymentStatus = "FAILED"
	PaymentStatusRefunded   PaymentStatus = "REFUNDED"
)

var paymentStatuses = []PaymentStatus{
	PaymentStatusInitiated,
	PaymentStatusAuthorized,
	PaymentStatusCaptured,
	PaymentStatusFailed,
	PaymentStatusRefunded,
}

func (p PaymentStatus) String() string { return string(p) }
func (p PaymentStatus) IsValid() bool  { return member(paymentStatuses, p) }

// ParsePaymentStatus ignores case.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	return parseUpper(paymentStatuses, "payment status", value)
}
