package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// ErrAlreadyProcessed is returned by Run when the key was seen before.
var ErrAlreadyProcessed = errors.New("already processed")

// Manager records processed message ids per consumer with SETNX and a TTL.
// Keys look like `sf:idempotency:evt:processed:<consumer>:<id>`.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

// NewManager builds a guard that remembers ids for ttl.
func NewManager(store redis.IdempotencyStore, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// CheckAndMarkProcessed reports whether id was already seen by consumer and
// marks it otherwise.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, id string) (bool, error) {
	key, err := m.processedKey(consumer, id)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, "1", m.ttl)
	if err != nil {
		return false, err
	}
	return !set, nil
}

// Delete forgets id so a redelivery is processed again.
func (m *Manager) Delete(ctx context.Context, consumer, id string) error {
	key, err := m.processedKey(consumer, id)
	if err != nil {
		return err
	}
	return m.store.Del(ctx, key)
}

// Run executes fn at most once per (consumer, id). When fn fails the mark is
// released so the message can be retried; a duplicate yields ErrAlreadyProcessed.
func (m *Manager) Run(ctx context.Context, consumer, id string, fn func(context.Context) error) error {
	already, err := m.CheckAndMarkProcessed(ctx, consumer, id)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		return ErrAlreadyProcessed
	}
	if err := fn(ctx); err != nil {
		if delErr := m.Delete(ctx, consumer, id); delErr != nil {
			return errors.Join(err, fmt.Errorf("release idempotency key: %w", delErr))
		}
		return err
	}
	return nil
}

func (m *Manager) processedKey(consumer, id string) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if id == "" {
		return "", errors.New("message id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, id), nil
}
