package orderstatus

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/events"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

type stubOrders struct {
	orders     map[uuid.UUID]*models.Order
	confirmed  []uuid.UUID
	confirmErr error
}

func (s *stubOrders) Get(_ context.Context, id uuid.UUID) (*models.Order, error) {
	if o, ok := s.orders[id]; ok {
		return o, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *stubOrders) ConfirmPayment(_ context.Context, id uuid.UUID) (bool, error) {
	if s.confirmErr != nil {
		return false, s.confirmErr
	}
	o, ok := s.orders[id]
	if !ok {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if o.Status == enums.OrderStatusCancelled {
		return false, pkgerrors.New(pkgerrors.CodeStateConflict, "order cancelled")
	}
	if o.Status != enums.OrderStatusPending {
		return false, nil
	}
	o.Status = enums.OrderStatusConfirmed
	s.confirmed = append(s.confirmed, id)
	return true, nil
}

type recordingHook struct {
	calls []payments.UnhandledTransition
}

func (h *recordingHook) OnUnhandled(_ context.Context, t payments.UnhandledTransition) {
	h.calls = append(h.calls, t)
}

func newConsumer(t *testing.T, orders *stubOrders) (*Consumer, *recordingHook) {
	t.Helper()
	srv := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = raw.Close() })
	manager, err := idempotency.NewManager(redis.Wrap(raw), time.Hour)
	require.NoError(t, err)

	hook := &recordingHook{}
	consumer, err := NewConsumer(orders, hook, manager, logger.Nop())
	require.NoError(t, err)
	return consumer, hook
}

func message(t *testing.T, event events.Event) outbox.Message {
	t.Helper()
	data, err := json.Marshal(event)
	require.NoError(t, err)
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    outbox.EnvelopeVersion,
		EventID:    uuid.NewString(),
		EventType:  event.Type(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
	require.NoError(t, err)
	return outbox.Message{
		ID:         "msg-1",
		Data:       payload,
		Attributes: map[string]string{outbox.AttrEventType: string(event.Type())},
	}
}

func pendingOrder(status enums.OrderStatus) *models.Order {
	return &models.Order{ID: uuid.New(), UserID: "user-1", Status: status, TotalAmount: decimal.NewFromInt(22)}
}

func TestPaymentCapturedConfirmsOrderOnce(t *testing.T) {
	order := pendingOrder(enums.OrderStatusPending)
	orders := &stubOrders{orders: map[uuid.UUID]*models.Order{order.ID: order}}
	consumer, hook := newConsumer(t, orders)

	msg := message(t, events.PaymentCaptured{OrderID: order.ID, PaymentID: uuid.New(), Amount: decimal.NewFromInt(22), Currency: "USD"})
	require.NoError(t, consumer.Handle(context.Background(), msg))
	require.NoError(t, consumer.Handle(context.Background(), msg))

	require.Equal(t, enums.OrderStatusConfirmed, order.Status)
	require.Equal(t, []uuid.UUID{order.ID}, orders.confirmed)
	require.Empty(t, hook.calls)
}

func TestPaymentCapturedForCancelledOrderReachesHook(t *testing.T) {
	order := pendingOrder(enums.OrderStatusCancelled)
	orders := &stubOrders{orders: map[uuid.UUID]*models.Order{order.ID: order}}
	consumer, hook := newConsumer(t, orders)

	paymentID := uuid.New()
	require.NoError(t, consumer.Handle(context.Background(), message(t, events.PaymentCaptured{OrderID: order.ID, PaymentID: paymentID})))

	require.Len(t, hook.calls, 1)
	require.Equal(t, "CANCELLED", hook.calls[0].From)
	require.Equal(t, "CONFIRMED", hook.calls[0].To)
	require.Equal(t, paymentID, hook.calls[0].PaymentID)
}

func TestPaymentFailedReachesHookWithoutOrderChange(t *testing.T) {
	order := pendingOrder(enums.OrderStatusPending)
	orders := &stubOrders{orders: map[uuid.UUID]*models.Order{order.ID: order}}
	consumer, hook := newConsumer(t, orders)

	require.NoError(t, consumer.Handle(context.Background(), message(t, events.PaymentFailed{OrderID: order.ID, PaymentID: uuid.New(), Reason: "card declined"})))

	require.Equal(t, enums.OrderStatusPending, order.Status)
	require.Len(t, hook.calls, 1)
	require.Equal(t, "PENDING", hook.calls[0].From)
	require.Equal(t, "PAYMENT_FAILED", hook.calls[0].To)
	require.Equal(t, "card declined", hook.calls[0].Reason)
}

func TestTransientFailureIsRedelivered(t *testing.T) {
	order := pendingOrder(enums.OrderStatusPending)
	orders := &stubOrders{orders: map[uuid.UUID]*models.Order{order.ID: order}, confirmErr: errors.New("db down")}
	consumer, _ := newConsumer(t, orders)

	msg := message(t, events.PaymentCaptured{OrderID: order.ID, PaymentID: uuid.New()})
	require.Error(t, consumer.Handle(context.Background(), msg))

	orders.confirmErr = nil
	require.NoError(t, consumer.Handle(context.Background(), msg))
	require.Equal(t, enums.OrderStatusConfirmed, order.Status)
}

func TestMalformedAndForeignMessagesAreAcked(t *testing.T) {
	orders := &stubOrders{orders: map[uuid.UUID]*models.Order{}}
	consumer, hook := newConsumer(t, orders)

	garbage := outbox.Message{
		Data:       []byte("not-json"),
		Attributes: map[string]string{outbox.AttrEventType: string(enums.EventPaymentCaptured)},
	}
	require.NoError(t, consumer.Handle(context.Background(), garbage))

	created := message(t, events.OrderCreated{OrderID: uuid.New(), UserID: "user-1"})
	require.NoError(t, consumer.Handle(context.Background(), created))

	unknownOrder := message(t, events.PaymentCaptured{OrderID: uuid.New(), PaymentID: uuid.New()})
	require.NoError(t, consumer.Handle(context.Background(), unknownOrder))

	require.Empty(t, hook.calls)
	require.Empty(t, orders.confirmed)
}
