package registry

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/events"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	orderID := uuid.New()
	paymentID := uuid.New()
	payloadBytes := mustMarshal(t, events.PaymentCaptured{
		OrderID:          orderID,
		PaymentID:        paymentID,
		Amount:           decimal.RequireFromString("10.00"),
		Currency:         "usd",
		ProviderIntentID: "pi_1",
	})

	event := models.OutboxEvent{
		EventType:     enums.EventPaymentCaptured,
		AggregateType: enums.AggregatePayment,
		AggregateID:   paymentID,
		Payload:       mustEnvelope(t, enums.EventPaymentCaptured, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "payment-captured" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	captured, ok := resolved.Event.(events.PaymentCaptured)
	if !ok {
		t.Fatalf("unexpected event type %T", resolved.Event)
	}
	if captured.OrderID != orderID {
		t.Fatalf("payload mismatch %+v", captured)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope incomplete %+v", resolved.Envelope)
	}
}

func TestEventRegistryRoutesOrderEventsTogether(t *testing.T) {
	reg := newTestEventRegistry(t)
	for _, eventType := range []enums.OutboxEventType{enums.EventOrderCreated, enums.EventOrderStatusUpdated} {
		orderID := uuid.New()
		payload := mustMarshal(t, map[string]any{"orderId": orderID, "userId": "u", "status": "PENDING", "totalAmount": "1.00"})
		resolved, err := reg.Resolve(models.OutboxEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Payload:       mustEnvelope(t, eventType, payload),
		})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", eventType, err)
		}
		if resolved.Descriptor.Topic != "order-events" {
			t.Fatalf("%s: unexpected topic %q", eventType, resolved.Descriptor.Topic)
		}
	}

	topics := reg.Topics()
	want := []string{"order-events", "payment-captured", "payment-failed"}
	if !slices.Equal(topics, want) {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)
	_, err := reg.Resolve(models.OutboxEvent{
		EventType:     "order_shipped",
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, "order_shipped", json.RawMessage(`{}`)),
	})
	assertNonRetryable(t, err)
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)
	_, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, enums.EventPaymentFailed, json.RawMessage(`{}`)),
	})
	assertNonRetryable(t, err)
}

func TestEventRegistryResolveMissingPayload(t *testing.T) {
	reg := newTestEventRegistry(t)
	_, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventPaymentFailed,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, enums.EventPaymentFailed, json.RawMessage(`null`)),
	})
	assertNonRetryable(t, err)
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	_, err := NewEventRegistry(config.EventingConfig{OrderEventsTopic: "order-events"})
	if err == nil {
		t.Fatal("expected missing payment topics to fail")
	}
	if got := len(multierr.Errors(err)); got != 2 {
		t.Fatalf("expected both missing topics reported, got %d: %v", got, err)
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.EventingConfig{
		OrderEventsTopic:     "order-events",
		PaymentCapturedTopic: "payment-captured",
		PaymentFailedTopic:   "payment-failed",
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func assertNonRetryable(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %T: %v", err, err)
	}
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func mustEnvelope(t *testing.T, eventType enums.OutboxEventType, data json.RawMessage) json.RawMessage {
	t.Helper()
	return mustMarshal(t, outbox.PayloadEnvelope{
		Version:    outbox.EnvelopeVersion,
		EventID:    uuid.NewString(),
		EventType:  eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
}
