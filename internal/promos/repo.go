package promos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

type kvStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	PromoKey(code string) string
	PromoIndexKey() string
}

// Repository persists promo codes as JSON documents in Redis.
type Repository interface {
	Find(ctx context.Context, code string) (*PromoCode, error)
	Save(ctx context.Context, promo PromoCode, ttl time.Duration) error
	Delete(ctx context.Context, code string) error
	List(ctx context.Context) ([]PromoCode, error)
}

type redisRepository struct {
	store kvStore
}

// NewRepository builds the Redis backed promo repository.
func NewRepository(store kvStore) (Repository, error) {
	if store == nil {
		return nil, fmt.Errorf("redis store required")
	}
	return &redisRepository{store: store}, nil
}

// Find returns nil, nil when the code does not exist (or already expired).
func (r *redisRepository) Find(ctx context.Context, code string) (*PromoCode, error) {
	raw, err := r.store.Get(ctx, r.store.PromoKey(code))
	if err != nil {
		if errors.Is(err, redis.ErrNil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get promo %s: %w", code, err)
	}
	var promo PromoCode
	if err := json.Unmarshal([]byte(raw), &promo); err != nil {
		return nil, fmt.Errorf("decode promo %s: %w", code, err)
	}
	return &promo, nil
}

func (r *redisRepository) Save(ctx context.Context, promo PromoCode, ttl time.Duration) error {
	payload, err := json.Marshal(promo)
	if err != nil {
		return fmt.Errorf("encode promo %s: %w", promo.Code, err)
	}
	if err := r.store.Set(ctx, r.store.PromoKey(promo.Code), payload, ttl); err != nil {
		return fmt.Errorf("save promo %s: %w", promo.Code, err)
	}
	return r.store.SAdd(ctx, r.store.PromoIndexKey(), promo.Code)
}

func (r *redisRepository) Delete(ctx context.Context, code string) error {
	if err := r.store.Del(ctx, r.store.PromoKey(code)); err != nil {
		return fmt.Errorf("delete promo %s: %w", code, err)
	}
	return r.store.SRem(ctx, r.store.PromoIndexKey(), code)
}

// List walks the index and prunes codes whose documents already expired.
func (r *redisRepository) List(ctx context.Context) ([]PromoCode, error) {
	codes, err := r.store.SMembers(ctx, r.store.PromoIndexKey())
	if err != nil {
		return nil, fmt.Errorf("list promo index: %w", err)
	}
	out := make([]PromoCode, 0, len(codes))
	var stale []string
	for _, code := range codes {
		promo, err := r.Find(ctx, code)
		if err != nil {
			return nil, err
		}
		if promo == nil {
			stale = append(stale, code)
			continue
		}
		out = append(out, *promo)
	}
	if len(stale) > 0 {
		_ = r.store.SRem(ctx, r.store.PromoIndexKey(), stale...)
	}
	return out, nil
}
