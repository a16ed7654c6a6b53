package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/pricing"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	CartKey(userID string) string
}

// Store persists carts as whole JSON documents. Writes are last-write-wins.
type Store interface {
	Load(ctx context.Context, userID string) (*pricing.Cart, error)
	Save(ctx context.Context, c pricing.Cart) (pricing.Cart, error)
	Delete(ctx context.Context, userID string) error
}

type redisStore struct {
	kv  kvStore
	ttl time.Duration
}

// NewStore builds the Redis cart store; every save refreshes ttl.
func NewStore(kv kvStore, ttl time.Duration) (Store, error) {
	if kv == nil {
		return nil, fmt.Errorf("redis store required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cart ttl must be positive")
	}
	return &redisStore{kv: kv, ttl: ttl}, nil
}

// Load returns nil, nil when the user has no cart.
func (s *redisStore) Load(ctx context.Context, userID string) (*pricing.Cart, error) {
	raw, err := s.kv.Get(ctx, s.kv.CartKey(userID))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}
	var c pricing.Cart
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	return &c, nil
}

// Save bumps the version and writes the cart, returning what was stored.
func (s *redisStore) Save(ctx context.Context, c pricing.Cart) (pricing.Cart, error) {
	c.Version++
	payload, err := json.Marshal(c)
	if err != nil {
		return c, fmt.Errorf("encode cart: %w", err)
	}
	if err := s.kv.Set(ctx, s.kv.CartKey(c.UserID), payload, s.ttl); err != nil {
		return c, fmt.Errorf("save cart: %w", err)
	}
	return c, nil
}

func (s *redisStore) Delete(ctx context.Context, userID string) error {
	if err := s.kv.Del(ctx, s.kv.CartKey(userID)); err != nil {
		return fmt.Errorf("delete cart: %w", err)
	}
	return nil
}
