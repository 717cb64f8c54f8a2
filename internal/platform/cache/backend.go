package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrBackendMiss is returned by Backend.ReadEntry when the key is not
// persisted.
var ErrBackendMiss = errors.New("cache backend miss")

// Backend is an optional durable store behind the cache. The in-memory map
// stays authoritative; the backend is written through on store and consulted
// on miss. Implementations must treat payload as opaque bytes.
type Backend interface {
	ReadEntry(ctx context.Context, key string) ([]byte, error)
	WriteEntry(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	DeleteEntry(ctx context.Context, key string) error
}

// persistedEntry is the serialized form written through to the backend.
type persistedEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
	Priority  Priority        `json:"priority"`
	Size      int             `json:"size"`
}

func (c *Cache) writeBackend(key string, encodedValue []byte, e *entry, ttl time.Duration) {
	payload, err := json.Marshal(persistedEntry{
		Key:       key,
		Value:     encodedValue,
		CreatedAt: e.createdAt,
		ExpiresAt: e.expiresAt,
		Priority:  e.priority,
		Size:      e.size,
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	if err := c.backend.WriteEntry(ctx, key, payload, ttl); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache backend write failed")
	}
}

// fillFromBackend consults the backend for key. Corrupt or expired payloads
// are deleted silently and reported as a miss (unless allowStale, in which
// case an expired payload is still returned without being re-admitted to the
// in-memory map). Fresh payloads are admitted as json.RawMessage values.
func (c *Cache) fillFromBackend(key string, now time.Time, allowStale bool) (interface{}, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()

	payload, err := c.backend.ReadEntry(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrBackendMiss) {
			c.logger.Warn().Err(err).Str("key", key).Msg("cache backend read failed")
		}
		return nil, false
	}

	var p persistedEntry
	if err := json.Unmarshal(payload, &p); err != nil || len(p.Value) == 0 {
		// Unreadable persisted entry: treat as expired and purge silently.
		_ = c.backend.DeleteEntry(ctx, key)
		return nil, false
	}

	value := interface{}(json.RawMessage(p.Value))
	if !now.Before(p.ExpiresAt) {
		_ = c.backend.DeleteEntry(ctx, key)
		if allowStale {
			return value, true
		}
		return nil, false
	}

	c.mu.Lock()
	c.entries[key] = &entry{
		key:       key,
		value:     value,
		createdAt: p.CreatedAt,
		expiresAt: p.ExpiresAt,
		priority:  p.Priority,
		size:      p.Size,
	}
	c.evictLocked(now)
	c.mu.Unlock()
	return value, true
}

func (c *Cache) deleteBackend(key string) {
	if c.backend == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), backendTimeout)
	defer cancel()
	if err := c.backend.DeleteEntry(ctx, key); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("cache backend delete failed")
	}
}
