// Package registry routes stored outbox rows to bus topics and decodes
// their typed payloads before publishing.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/events"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// EventDescriptor links an event type to its aggregate and topic.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
}

// ResolvedEvent is a row that passed validation, ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Event      events.Event
}

// NonRetryableError marks a row that will never publish as stored; the
// publisher dead-letters it instead of retrying.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func permanent(format string, args ...any) error {
	return NewNonRetryableError(fmt.Errorf(format, args...))
}

type EventRegistry struct {
	routes map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry sends both order events to one topic so consumers see
// an order's history in order; each payment outcome has its own topic.
func NewEventRegistry(cfg config.EventingConfig) (*EventRegistry, error) {
	var errs error
	for name, topic := range map[string]string{
		"order events":     cfg.OrderEventsTopic,
		"payment captured": cfg.PaymentCapturedTopic,
		"payment failed":   cfg.PaymentFailedTopic,
	} {
		if topic == "" {
			errs = multierr.Append(errs, fmt.Errorf("%s topic is required", name))
		}
	}
	if errs != nil {
		return nil, errs
	}

	routes := map[enums.OutboxEventType]EventDescriptor{}
	route := func(t enums.OutboxEventType, agg enums.OutboxAggregateType, topic string) {
		routes[t] = EventDescriptor{EventType: t, AggregateType: agg, Topic: topic}
	}
	route(enums.EventOrderCreated, enums.AggregateOrder, cfg.OrderEventsTopic)
	route(enums.EventOrderStatusUpdated, enums.AggregateOrder, cfg.OrderEventsTopic)
	route(enums.EventPaymentCaptured, enums.AggregatePayment, cfg.PaymentCapturedTopic)
	route(enums.EventPaymentFailed, enums.AggregatePayment, cfg.PaymentFailedTopic)
	return &EventRegistry{routes: routes}, nil
}

// Topics lists each distinct destination topic, sorted.
func (r *EventRegistry) Topics() []string {
	var out []string
	for _, desc := range r.routes {
		out = append(out, desc.Topic)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Resolve checks the row against its route and decodes the typed event.
// Every failure is a NonRetryableError.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.routes[row.EventType]
	switch {
	case !ok:
		return nil, permanent("unsupported event type %s", row.EventType)
	case desc.AggregateType != row.AggregateType:
		return nil, permanent("aggregate mismatch: expected %s got %s", desc.AggregateType, row.AggregateType)
	case row.AggregateID == uuid.Nil:
		return nil, permanent("missing aggregate_id")
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, permanent("decode envelope: %w", err)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, permanent("payload missing for %s", row.EventType)
	}
	decoded, err := events.Decode(row.EventType, envelope.Data)
	if err != nil {
		var already NonRetryableError
		if errors.As(err, &already) {
			return nil, err
		}
		return nil, NewNonRetryableError(err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Event: decoded}, nil
}
