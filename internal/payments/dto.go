package payments

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// InitiateInput is the body of POST /payments/initiate plus its header key.
type InitiateInput struct {
	OrderID        uuid.UUID       `json:"orderId" validate:"required"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency" validate:"required,len=3"`
	IdempotencyKey string          `json:"-"`
}

// PaymentResponse omits ClientSecret once the payment left INITIATED.
type PaymentResponse struct {
	PaymentID        uuid.UUID           `json:"paymentId"`
	ProviderIntentID string              `json:"providerIntentId"`
	ClientSecret     string              `json:"clientSecret,omitempty"`
	Status           enums.PaymentStatus `json:"status"`
	Amount           decimal.Decimal     `json:"amount"`
	Currency         string              `json:"currency"`
}

// SweepSummary reports one stale payment verification pass.
type SweepSummary struct {
	Scanned  int
	Captured int
}
