package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is the durable record produced by a successful checkout. TotalAmount
// is frozen at creation; status changes never re-price it.
type Order struct {
	ID                   uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID               string             `gorm:"column:user_id;not null"`
	OrderNumber          string             `gorm:"column:order_number;not null;uniqueIndex:ux_orders_order_number"`
	Status               enums.OrderStatus  `gorm:"column:status;type:text;not null;default:'PENDING'"`
	TotalAmount          decimal.Decimal    `gorm:"column:total_amount;type:numeric(12,2);not null"`
	ShippingAddress      string             `gorm:"column:shipping_address;not null"`
	PaymentMethod        string             `gorm:"column:payment_method;not null"`
	PromoCode            *string            `gorm:"column:promo_code"`
	DiscountAmount       decimal.Decimal    `gorm:"column:discount_amount;type:numeric(12,2);not null;default:0"`
	CheckoutStep         enums.CheckoutStep `gorm:"column:checkout_step;type:text;not null;default:'order_created'"`
	StockCommitAttempts  int                `gorm:"column:stock_commit_attempts;not null;default:0"`
	LastStockCommitError *string            `gorm:"column:last_stock_commit_error"`
	Items                []OrderItem        `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt            time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }
