package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scripts that only touch KEYS[1] while it still holds ARGV[1], plus an
// atomic fixed-window counter.
var (
	delIfValue = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	pexpireIfValue = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
	incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 and tonumber(ARGV[1]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n`)
)

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.rdb == nil {
		return errNotInitialized
	}
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Get returns ErrNil for a missing key.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.rdb == nil {
		return "", errNotInitialized
	}
	return c.rdb.Get(ctx, key).Result()
}

func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.rdb == nil {
		return false, errNotInitialized
	}
	return c.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.rdb == nil {
		return errNotInitialized
	}
	return c.rdb.Del(ctx, keys...).Err()
}

func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	if c.rdb == nil {
		return 0, errNotInitialized
	}
	return c.rdb.Incr(ctx, key).Result()
}

// IncrWithTTL increments key and, on the first hit only, starts its expiry
// window. Both steps run in one script so a crash cannot leave a counter
// without a TTL.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c.rdb == nil {
		return 0, errNotInitialized
	}
	return incrWindow.Run(ctx, c.rdb, []string{key}, ttl.Milliseconds()).Int64()
}

func (c *Client) SAdd(ctx context.Context, key string, members ...string) error {
	if c.rdb == nil {
		return errNotInitialized
	}
	return c.rdb.SAdd(ctx, key, asArgs(members)...).Err()
}

func (c *Client) SRem(ctx context.Context, key string, members ...string) error {
	if c.rdb == nil {
		return errNotInitialized
	}
	return c.rdb.SRem(ctx, key, asArgs(members)...).Err()
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	if c.rdb == nil {
		return nil, errNotInitialized
	}
	return c.rdb.SMembers(ctx, key).Result()
}

// DelIfValue deletes key only while it still stores value.
func (c *Client) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	return c.runOwned(ctx, delIfValue, key, value)
}

// ExpireIfValue resets the TTL of key only while it still stores value.
func (c *Client) ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.runOwned(ctx, pexpireIfValue, key, value, ttl.Milliseconds())
}

func (c *Client) runOwned(ctx context.Context, script *redis.Script, key string, args ...any) (bool, error) {
	if c.rdb == nil {
		return false, errNotInitialized
	}
	n, err := script.Run(ctx, c.rdb, []string{key}, args...).Int64()
	return n == 1, err
}

func asArgs(members []string) []any {
	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}
