// Package orderstatus moves orders forward when payment events arrive on the
// bus.
package orderstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/events"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/idempotency"
)

// ConsumerName scopes the idempotency keys of this consumer.
const ConsumerName = "order-status"

const (
	source             = "order-status-consumer"
	paymentFailedState = "PAYMENT_FAILED"
)

type orderService interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID) (bool, error)
}

type deduper interface {
	Run(ctx context.Context, consumer, id string, fn func(context.Context) error) error
}

// Consumer applies PaymentCaptured and PaymentFailed events to orders.
type Consumer struct {
	orders orderService
	hook   payments.UnhandledTransitionHook
	dedupe deduper
	logg   *logger.Logger
}

func NewConsumer(orders orderService, hook payments.UnhandledTransitionHook, dedupe deduper, logg *logger.Logger) (*Consumer, error) {
	if orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if hook == nil {
		return nil, fmt.Errorf("unhandled transition hook required")
	}
	if dedupe == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{orders: orders, hook: hook, dedupe: dedupe, logg: logg}, nil
}

// Handle processes one bus message. Malformed messages are logged and acked;
// only failures worth a redelivery are returned.
func (c *Consumer) Handle(ctx context.Context, msg outbox.Message) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": msg.EventType(),
	})

	switch enums.OutboxEventType(msg.EventType()) {
	case enums.EventPaymentCaptured, enums.EventPaymentFailed:
	default:
		c.logg.Debug(logCtx, "skipping event not handled by order-status consumer")
		return nil
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return nil
	}
	if envelope.EventID == "" {
		c.logg.Error(logCtx, "envelope has no event id", nil)
		return nil
	}
	event, err := events.Decode(envelope.EventType, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode event payload", err)
		return nil
	}
	logCtx = c.logg.WithField(logCtx, "event_id", envelope.EventID)

	err = c.dedupe.Run(logCtx, ConsumerName, envelope.EventID, func(ctx context.Context) error {
		return c.apply(ctx, event)
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, idempotency.ErrAlreadyProcessed):
		c.logg.Info(logCtx, "event already processed")
		return nil
	default:
		c.logg.Error(logCtx, "order-status handling failed", err)
		return err
	}
}

func (c *Consumer) apply(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.PaymentCaptured:
		return c.confirm(ctx, e)
	case events.PaymentFailed:
		return c.paymentFailed(ctx, e)
	case events.OrderCreated, events.OrderStatusUpdated:
		return nil
	default:
		return fmt.Errorf("unexpected event %T", event)
	}
}

func (c *Consumer) confirm(ctx context.Context, e events.PaymentCaptured) error {
	ctx = c.logg.WithOrderID(ctx, e.OrderID.String())
	changed, err := c.orders.ConfirmPayment(ctx, e.OrderID)
	switch {
	case err == nil:
	case pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		c.hook.OnUnhandled(ctx, payments.UnhandledTransition{
			PaymentID: e.PaymentID,
			OrderID:   e.OrderID,
			From:      string(enums.OrderStatusCancelled),
			To:        string(enums.OrderStatusConfirmed),
			Source:    source,
			Reason:    "payment captured for cancelled order",
		})
		return nil
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		c.logg.Critical(ctx, "payment captured for unknown order", err)
		return nil
	default:
		return err
	}
	if changed {
		c.logg.Info(ctx, "order confirmed after payment capture")
	}
	return nil
}

func (c *Consumer) paymentFailed(ctx context.Context, e events.PaymentFailed) error {
	ctx = c.logg.WithOrderID(ctx, e.OrderID.String())
	from := "UNKNOWN"
	order, err := c.orders.Get(ctx, e.OrderID)
	switch {
	case err == nil:
		from = string(order.Status)
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
	default:
		return err
	}
	c.hook.OnUnhandled(ctx, payments.UnhandledTransition{
		PaymentID: e.PaymentID,
		OrderID:   e.OrderID,
		From:      from,
		To:        paymentFailedState,
		Source:    source,
		Reason:    e.Reason,
	})
	return nil
}
