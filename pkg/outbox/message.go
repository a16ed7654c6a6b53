package outbox

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Message attribute names shared by every bus transport.
const (
	AttrEventID       = "event_id"
	AttrEventType     = "event_type"
	AttrAggregateType = "aggregate_type"
	AttrAggregateID   = "aggregate_id"
	AttrCreatedAt     = "created_at"
)

// Message is an outbox row as it travels on the bus. ID is the transport's
// own delivery id and is only set on consumed messages.
type Message struct {
	ID         string
	Key        string
	Data       []byte
	Attributes map[string]string
}

// EventType returns the event_type attribute.
func (m Message) EventType() string {
	return m.Attributes[AttrEventType]
}

// Publisher delivers a message to a topic and waits for the broker ack.
type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
}

// Handler consumes one message. A nil return acks it; an error asks the
// transport to redeliver.
type Handler func(ctx context.Context, msg Message) error

// MessageFor builds the bus message for a stored row.
func MessageFor(event models.OutboxEvent, eventID string) Message {
	return Message{
		Key:  event.AggregateID.String(),
		Data: event.Payload,
		Attributes: map[string]string{
			AttrEventID:       eventID,
			AttrEventType:     string(event.EventType),
			AttrAggregateType: string(event.AggregateType),
			AttrAggregateID:   event.AggregateID.String(),
			AttrCreatedAt:     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
}
