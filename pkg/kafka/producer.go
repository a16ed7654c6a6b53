// Package kafka carries outbox messages over Kafka with sarama.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

// Producer publishes outbox messages with a sync producer keyed by
// aggregate id so events for one aggregate stay ordered.
type Producer struct {
	producer sarama.SyncProducer
	logg     *logger.Logger
}

func newSaramaConfig(cfg config.KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Return.Successes = true
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Return.Errors = true
	return sc
}

// NewProducer dials the configured brokers.
func NewProducer(cfg config.KafkaConfig, logg *logger.Logger) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	producer, err := sarama.NewSyncProducer(cfg.Brokers, newSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return NewProducerFrom(producer, logg), nil
}

// NewProducerFrom adopts an existing sync producer.
func NewProducerFrom(producer sarama.SyncProducer, logg *logger.Logger) *Producer {
	return &Producer{producer: producer, logg: logg}
}

// Publish implements outbox.Publisher.
func (p *Producer) Publish(ctx context.Context, topic string, msg outbox.Message) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka producer not initialized")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	headers := make([]sarama.RecordHeader, 0, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers = append(headers, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(msg.Key),
		Value:     sarama.ByteEncoder(msg.Data),
		Headers:   headers,
		Timestamp: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	if p.logg != nil {
		p.logg.Debug(p.logg.WithFields(ctx, map[string]any{
			"topic":     topic,
			"key":       msg.Key,
			"partition": partition,
			"offset":    offset,
		}), "message sent to kafka")
	}
	return nil
}

// Ping is a no-op; the sync producer fails fast on send when brokers vanish.
func (p *Producer) Ping(context.Context) error {
	if p == nil || p.producer == nil {
		return errors.New("kafka producer not initialized")
	}
	return nil
}

func (p *Producer) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
