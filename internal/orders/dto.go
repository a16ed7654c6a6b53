package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// CreateOrderInput carries a priced snapshot; orders never re-price.
type CreateOrderInput struct {
	UserID          string
	ShippingAddress string
	PaymentMethod   string
	PromoCode       *string
	DiscountAmount  decimal.Decimal
	TotalAmount     decimal.Decimal
	Items           []ItemInput
}

type ItemInput struct {
	ProductID   int64
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	ImageURLs   []string
}

// OrderDTO is the API representation of an order.
type OrderDTO struct {
	ID              uuid.UUID          `json:"id"`
	OrderNumber     string             `json:"orderNumber"`
	UserID          string             `json:"userId"`
	Status          enums.OrderStatus  `json:"status"`
	TotalAmount     decimal.Decimal    `json:"totalAmount"`
	DiscountAmount  decimal.Decimal    `json:"discountAmount"`
	PromoCode       *string            `json:"promoCode,omitempty"`
	ShippingAddress string             `json:"shippingAddress"`
	PaymentMethod   string             `json:"paymentMethod"`
	CheckoutStep    enums.CheckoutStep `json:"checkoutStep"`
	Items           []OrderItemDTO     `json:"items"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

type OrderItemDTO struct {
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	ImageURLs   []string        `json:"imageUrls"`
}

// ToDTO maps a persisted order and its items.
func ToDTO(o models.Order) OrderDTO {
	items := make([]OrderItemDTO, 0, len(o.Items))
	for _, it := range o.Items {
		images := []string(it.ImageURLs)
		if images == nil {
			images = []string{}
		}
		items = append(items, OrderItemDTO{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			Subtotal:    it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))),
			ImageURLs:   images,
		})
	}
	return OrderDTO{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		Status:          o.Status,
		TotalAmount:     o.TotalAmount,
		DiscountAmount:  o.DiscountAmount,
		PromoCode:       o.PromoCode,
		ShippingAddress: o.ShippingAddress,
		PaymentMethod:   o.PaymentMethod,
		CheckoutStep:    o.CheckoutStep,
		Items:           items,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// ToDTOs maps a list preserving order.
func ToDTOs(list []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(list))
	for _, o := range list {
		out = append(out, ToDTO(o))
	}
	return out
}
