package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed caching utilities
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

func (c *Cache) fullKey(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Enabled reports whether the cache is backed by a live Redis connection
func (c *Cache) Enabled() bool {
	return c.client.Enabled()
}

// Get retrieves a cached value
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.fullKey(key), data, ttl).Err()
}

// SetNX stores value only when key is absent. It reports whether the write happened.
func (c *Cache) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	if !c.client.Enabled() {
		return true, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("cache marshal failed: %w", err)
	}

	ok, err := c.client.Redis().SetNX(ctx, c.fullKey(key), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("cache setnx failed: %w", err)
	}
	return ok, nil
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	return c.client.Redis().Del(ctx, c.fullKey(key)).Err()
}

// GetOrSet retrieves from cache or calls fn to populate it
func (c *Cache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, fn func() (interface{}, error)) error {
	// Try cache first
	found, err := c.Get(ctx, key, dest)
	if err != nil {
		return err
	}
	if found {
		return nil
	}

	// Cache miss - call function
	value, err := fn()
	if err != nil {
		return err
	}

	// A failed write only costs the next caller a miss
	_ = c.Set(ctx, key, value, ttl)

	// Unmarshal into dest
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}
	return json.Unmarshal(data, dest)
}

// Predefined TTLs
const (
	TTLOrderBook   = 2 * time.Second   // 주문장
	TTLTradesDay   = 5 * time.Second   // 당일 체결
	TTLHistory     = 1 * time.Minute   // 과거 주문 이력
	TTLIdempotency = 300 * time.Second // 중복 요청 차단
)

// Common cache key generators

// OrderBookKey is the per-user order book snapshot key
func OrderBookKey(userID string) string {
	return fmt.Sprintf("orderbook:%s", userID)
}

// TradesDayKey is the per-user trades-for-day key
func TradesDayKey(userID string, day string) string {
	return fmt.Sprintf("trades:%s:%s", userID, day)
}

// IdempotencyKey scopes a client key by user and operation
func IdempotencyKey(userID, operation, key string) string {
	return fmt.Sprintf("idem:%s:%s:%s", userID, operation, key)
}
