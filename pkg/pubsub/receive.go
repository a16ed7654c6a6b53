package pubsub

import (
	"context"
	"errors"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Receive pulls from sub until ctx ends, acking messages the handler accepts
// and nacking the rest for redelivery.
func Receive(ctx context.Context, sub *pubsub.Subscriber, handler outbox.Handler) error {
	if sub == nil {
		return errors.New("subscription not configured")
	}
	if handler == nil {
		return errors.New("handler required")
	}
	return sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if err := handler(ctx, fromMessage(msg)); err != nil {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func fromMessage(msg *pubsub.Message) outbox.Message {
	out := outbox.Message{
		ID:         msg.ID,
		Data:       msg.Data,
		Attributes: msg.Attributes,
	}
	if out.Attributes == nil {
		out.Attributes = map[string]string{}
	}
	out.Key = out.Attributes[outbox.AttrAggregateID]
	return out
}
