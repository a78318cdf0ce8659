// Package cache provides a Redis client wrapper for rate limiting and live
// per-caller spend counters. Durable accounting lives in PostgreSQL; Redis
// only mirrors the numbers that need sub-millisecond reads.
package cache

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps a Redis client with gateway-specific operations.
type Cache struct {
	client *redis.Client
}

// New creates a Redis cache client connected to the given address.
// The addr should be in "host:port" format.
func New(ctx context.Context, addr, password string) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("cache: failed to connect to Redis at %s: %w", addr, err)
	}

	log.Printf("cache: connected to Redis at %s", addr)
	return &Cache{client: client}, nil
}

// Close gracefully shuts down the Redis client connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func spendKey(callerID string) string {
	return fmt.Sprintf("spend:caller:%s", callerID)
}

// incrWithExpireLua atomically increments a key and sets TTL if the key has
// no expiry, in a single round-trip.
var incrWithExpireLua = redis.NewScript(`
	local newval = redis.call('INCRBYFLOAT', KEYS[1], ARGV[1])
	if redis.call('TTL', KEYS[1]) == -1 then
		redis.call('EXPIRE', KEYS[1], ARGV[2])
	end
	return newval
`)

// IncrCallerSpend atomically adds to the live spend counter for a caller.
// Counters roll over monthly via TTL.
func (c *Cache) IncrCallerSpend(ctx context.Context, callerID string, amount float64) (float64, error) {
	key := spendKey(callerID)
	ttlSeconds := int(31 * 24 * time.Hour / time.Second)

	result, err := incrWithExpireLua.Run(ctx, c.client, []string{key},
		strconv.FormatFloat(amount, 'f', 10, 64), ttlSeconds).Result()
	if err != nil {
		return 0, fmt.Errorf("cache: incr spend %q: %w", key, err)
	}

	// Lua returns INCRBYFLOAT results as strings.
	switch v := result.(type) {
	case string:
		newVal, parseErr := strconv.ParseFloat(v, 64)
		if parseErr != nil {
			return 0, fmt.Errorf("cache: parse incr result %q: %w", v, parseErr)
		}
		return newVal, nil
	case float64:
		return v, nil
	default:
		return 0, fmt.Errorf("cache: unexpected result type from Lua script")
	}
}

// GetCallerSpend retrieves the live spend counter for a caller.
// Returns 0 when nothing has been recorded this window.
func (c *Cache) GetCallerSpend(ctx context.Context, callerID string) (float64, error) {
	key := spendKey(callerID)
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache: get spend %q: %w", key, err)
	}

	spend, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("cache: parse spend %q=%q: %w", key, val, err)
	}
	return spend, nil
}

// rateLimitLua atomically increments the counter and sets TTL only on the
// first request in the window, so later requests never extend the window.
var rateLimitLua = redis.NewScript(`
	local count = redis.call('INCR', KEYS[1])
	if count == 1 then
		redis.call('EXPIRE', KEYS[1], ARGV[1])
	end
	return count
`)

// RateLimitCheck performs a fixed-window rate limit check for a given key.
// It returns true if the request is allowed (under limit), false if rate-limited.
func (c *Cache) RateLimitCheck(ctx context.Context, key string, maxRequests int64, window time.Duration) (bool, error) {
	rateLimitKey := fmt.Sprintf("ratelimit:%s", key)
	windowSeconds := int(window / time.Second)

	result, err := rateLimitLua.Run(ctx, c.client, []string{rateLimitKey}, windowSeconds).Int64()
	if err != nil {
		return false, fmt.Errorf("cache: rate limit check: %w", err)
	}

	return result <= maxRequests, nil
}

// Client returns the underlying Redis client for advanced operations.
func (c *Cache) Client() *redis.Client {
	return c.client
}
