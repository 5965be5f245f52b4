// Package ratelimit decides whether a request identified by a RateLimitKey
// may proceed, against a shared counter store.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CounterStore is the shared fixed-window counter. Increment must be atomic
// with respect to window creation: concurrent callers on one key may never
// observe the same count.
type CounterStore interface {
	// Incr bumps the counter at key, starting a window of the given length
	// on first increment, and returns the post-increment count plus the
	// time left in the window.
	Incr(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// incrScript performs INCR + conditional PEXPIRE + PTTL as one atomic
// operation. A separate read-then-write pair would let two concurrent
// requests both pass at the limit boundary.
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
    redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`)

// RedisCounterStore implements CounterStore on Redis. Because the store
// itself provides the atomicity, the guarantee holds across horizontally
// scaled gateway instances.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore creates a Redis-backed counter store.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Incr implements CounterStore.
func (s *RedisCounterStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	res, err := incrScript.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("counter increment failed: %w", err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("counter script returned %d values", len(res))
	}

	count := res[0]
	ttl := time.Duration(res[1]) * time.Millisecond
	if ttl < 0 {
		// PTTL reports -1 for keys without expiry; treat as a fresh window.
		ttl = window
	}
	return count, ttl, nil
}
