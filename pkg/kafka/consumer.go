package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const rejoinDelay = time.Second

// ConsumerGroup feeds messages from topics to an outbox.Handler. A message is
// marked only after the handler succeeds; a handler error ends the claim so
// the group rejoins and redelivers from the last committed offset.
type ConsumerGroup struct {
	group   sarama.ConsumerGroup
	topics  []string
	handler outbox.Handler
	logg    *logger.Logger
}

// NewConsumerGroup joins cfg.ConsumerGroup on the configured brokers.
func NewConsumerGroup(cfg config.KafkaConfig, topics []string, handler outbox.Handler, logg *logger.Logger) (*ConsumerGroup, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.ConsumerGroup == "" {
		return nil, errors.New("kafka consumer group is required")
	}
	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.ConsumerGroup, newSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}
	return NewConsumerGroupFrom(group, topics, handler, logg)
}

// NewConsumerGroupFrom adopts an existing consumer group.
func NewConsumerGroupFrom(group sarama.ConsumerGroup, topics []string, handler outbox.Handler, logg *logger.Logger) (*ConsumerGroup, error) {
	if group == nil {
		return nil, errors.New("consumer group required")
	}
	if len(topics) == 0 {
		return nil, errors.New("at least one topic is required")
	}
	if handler == nil {
		return nil, errors.New("handler required")
	}
	if logg == nil {
		return nil, errors.New("logger required")
	}
	return &ConsumerGroup{group: group, topics: topics, handler: handler, logg: logg}, nil
}

// Run consumes until ctx is canceled.
func (c *ConsumerGroup) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logg.Error(ctx, "kafka consumer error", err)
		}
	}()
	for {
		if err := c.group.Consume(ctx, c.topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logg.Error(ctx, "kafka consume session ended", err)
			select {
			case <-ctx.Done():
			case <-time.After(rejoinDelay):
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *ConsumerGroup) Close() error {
	return c.group.Close()
}

func (c *ConsumerGroup) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (c *ConsumerGroup) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim implements sarama.ConsumerGroupHandler.
func (c *ConsumerGroup) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			if err := c.handler(session.Context(), toMessage(message)); err != nil {
				return fmt.Errorf("handle %s/%d@%d: %w", message.Topic, message.Partition, message.Offset, err)
			}
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

func toMessage(m *sarama.ConsumerMessage) outbox.Message {
	attrs := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		if h == nil {
			continue
		}
		attrs[string(h.Key)] = string(h.Value)
	}
	return outbox.Message{
		ID:         m.Topic + "/" + strconv.Itoa(int(m.Partition)) + "/" + strconv.FormatInt(m.Offset, 10),
		Key:        string(m.Key),
		Data:       m.Value,
		Attributes: attrs,
	}
}
