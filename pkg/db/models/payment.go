package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Payment is one provider payment attempt for an order. IdempotencyKey and
// ProviderIntentID are both unique so duplicate initiations collapse to one row.
type Payment struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index:idx_payments_order_id"`
	Amount           decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency         string              `gorm:"column:currency;size:3;not null"`
	Status           enums.PaymentStatus `gorm:"column:status;type:text;not null"`
	PaymentMethod    string              `gorm:"column:payment_method;not null"`
	ProviderIntentID string              `gorm:"column:provider_intent_id;not null;uniqueIndex:ux_payments_provider_intent_id"`
	IdempotencyKey   string              `gorm:"column:idempotency_key;not null;uniqueIndex:ux_payments_idempotency_key"`
	ErrorMessage     *string             `gorm:"column:error_message"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }
