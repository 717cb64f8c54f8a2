package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisBackend persists cache entries in Redis so warm data survives a
// process restart. Entries carry the same TTL in Redis as in memory, so
// Redis reclaims them on its own even if the process never deletes them.
type RedisBackend struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisBackend connects to redisURL (redis://...) and verifies the
// connection with a ping.
func NewRedisBackend(ctx context.Context, redisURL, keyPrefix string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBackend{client: client, keyPrefix: keyPrefix}, nil
}

// NewRedisBackendFromClient wraps an existing client, for callers (and
// tests) that manage their own connection.
func NewRedisBackendFromClient(client *redis.Client, keyPrefix string) *RedisBackend {
	return &RedisBackend{client: client, keyPrefix: keyPrefix}
}

// Close releases the underlying client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

func (b *RedisBackend) key(key string) string {
	return b.keyPrefix + key
}

func (b *RedisBackend) ReadEntry(ctx context.Context, key string) ([]byte, error) {
	payload, err := b.client.Get(ctx, b.key(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrBackendMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return payload, nil
}

func (b *RedisBackend) WriteEntry(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := b.client.Set(ctx, b.key(key), payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (b *RedisBackend) DeleteEntry(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
