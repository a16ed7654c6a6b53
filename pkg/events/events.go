// Package events defines the closed set of lifecycle events the storefront
// publishes. Each event type is a concrete struct; Decode is the only place a
// wire type string is turned into a value, after which callers type-switch.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Event is implemented only by the types in this package.
type Event interface {
	Type() enums.OutboxEventType
	Aggregate() (enums.OutboxAggregateType, uuid.UUID)
	sealed()
}

// OrderCreated is published once per successful checkout.
type OrderCreated struct {
	OrderID     uuid.UUID         `json:"orderId"`
	OrderNumber string            `json:"orderNumber"`
	UserID      string            `json:"userId"`
	TotalAmount decimal.Decimal   `json:"totalAmount"`
	Status      enums.OrderStatus `json:"status"`
}

// OrderStatusUpdated is published on every order status change.
type OrderStatusUpdated struct {
	OrderID        uuid.UUID         `json:"orderId"`
	UserID         string            `json:"userId"`
	TotalAmount    decimal.Decimal   `json:"totalAmount"`
	Status         enums.OrderStatus `json:"status"`
	PreviousStatus enums.OrderStatus `json:"previousStatus"`
}

// PaymentCaptured is published when a payment settles.
type PaymentCaptured struct {
	OrderID          uuid.UUID       `json:"orderId"`
	PaymentID        uuid.UUID       `json:"paymentId"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	ProviderIntentID string          `json:"providerIntentId"`
}

// PaymentFailed is published when the provider rejects a payment.
type PaymentFailed struct {
	OrderID   uuid.UUID `json:"orderId"`
	PaymentID uuid.UUID `json:"paymentId"`
	Reason    string    `json:"reason"`
}

func (OrderCreated) Type() enums.OutboxEventType       { return enums.EventOrderCreated }
func (OrderStatusUpdated) Type() enums.OutboxEventType { return enums.EventOrderStatusUpdated }
func (PaymentCaptured) Type() enums.OutboxEventType    { return enums.EventPaymentCaptured }
func (PaymentFailed) Type() enums.OutboxEventType      { return enums.EventPaymentFailed }

func (e OrderCreated) Aggregate() (enums.OutboxAggregateType, uuid.UUID) {
	return enums.AggregateOrder, e.OrderID
}

func (e OrderStatusUpdated) Aggregate() (enums.OutboxAggregateType, uuid.UUID) {
	return enums.AggregateOrder, e.OrderID
}

func (e PaymentCaptured) Aggregate() (enums.OutboxAggregateType, uuid.UUID) {
	return enums.AggregatePayment, e.PaymentID
}

func (e PaymentFailed) Aggregate() (enums.OutboxAggregateType, uuid.UUID) {
	return enums.AggregatePayment, e.PaymentID
}

func (OrderCreated) sealed()       {}
func (OrderStatusUpdated) sealed() {}
func (PaymentCaptured) sealed()    {}
func (PaymentFailed) sealed()      {}

// UnknownTypeError is returned by Decode for types outside the closed set.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Type)
}

// Decode turns a wire type and JSON payload into a concrete Event.
func Decode(eventType enums.OutboxEventType, data json.RawMessage) (Event, error) {
	switch eventType {
	case enums.EventOrderCreated:
		return decodeAs[OrderCreated](eventType, data)
	case enums.EventOrderStatusUpdated:
		return decodeAs[OrderStatusUpdated](eventType, data)
	case enums.EventPaymentCaptured:
		return decodeAs[PaymentCaptured](eventType, data)
	case enums.EventPaymentFailed:
		return decodeAs[PaymentFailed](eventType, data)
	default:
		return nil, &UnknownTypeError{Type: string(eventType)}
	}
}

func decodeAs[T Event](eventType enums.OutboxEventType, data json.RawMessage) (Event, error) {
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", eventType, err)
	}
	if _, id := out.Aggregate(); id == uuid.Nil {
		return nil, fmt.Errorf("decode %s payload: aggregate id missing", eventType)
	}
	return out, nil
}
