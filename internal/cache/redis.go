// Package cache persists fetched ISS pages in redis so repeated batches skip
// history windows that cannot change.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configure the redis connection.
type Options struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// PageCache stores encoded pages in redis with a TTL.
type PageCache struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

// NewPageCache wraps an existing redis client.
func NewPageCache(client *redis.Client, prefix string, ttl time.Duration) *PageCache {
	if client == nil {
		panic("redis client cannot be nil")
	}
	return &PageCache{redis: client, prefix: strings.TrimRight(prefix, ":"), ttl: ttl}
}

// Dial connects to redis and verifies the connection with PING.
func Dial(ctx context.Context, opts Options) (*redis.Client, error) {
	if opts.Addr == "" {
		return nil, errors.New("cache.redis_addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}

// Get returns the cached value; ok is false on a miss.
func (c *PageCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.redis.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return data, true, nil
}

// Set stores value under key for the configured TTL (no expiry when zero).
func (c *PageCache) Set(ctx context.Context, key string, value []byte) error {
	if err := c.redis.Set(ctx, c.key(key), value, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *PageCache) key(k string) string {
	if c.prefix == "" {
		return k
	}
	return c.prefix + ":" + k
}
