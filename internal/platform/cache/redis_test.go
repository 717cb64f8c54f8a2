package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBackendFromClient(client, "test:"), mr
}

func TestRedisBackendRoundTrip(t *testing.T) {
	b, _ := newTestBackend(t)
	ctx := context.Background()

	if err := b.WriteEntry(ctx, "k", []byte(`{"v":1}`), time.Minute); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}

	payload, err := b.ReadEntry(ctx, "k")
	if err != nil {
		t.Fatalf("ReadEntry: %v", err)
	}
	if string(payload) != `{"v":1}` {
		t.Fatalf("payload = %s", payload)
	}

	if err := b.DeleteEntry(ctx, "k"); err != nil {
		t.Fatalf("DeleteEntry: %v", err)
	}
	if _, err := b.ReadEntry(ctx, "k"); !errors.Is(err, ErrBackendMiss) {
		t.Fatalf("after delete err = %v, want ErrBackendMiss", err)
	}
}

func TestRedisBackendTTL(t *testing.T) {
	b, mr := newTestBackend(t)
	ctx := context.Background()

	if err := b.WriteEntry(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := b.ReadEntry(ctx, "k"); !errors.Is(err, ErrBackendMiss) {
		t.Fatalf("expired key err = %v, want ErrBackendMiss", err)
	}
}

func TestCacheBackendWriteThroughAndFill(t *testing.T) {
	b, _ := newTestBackend(t)

	c, _ := newTestCache(Config{})
	c.SetBackend(b)

	c.StoreTTL("capacity:h1", map[string]int{"beds": 5}, PriorityMedium, time.Minute)

	// A fresh cache sharing the backend should fill on miss.
	c2, _ := newTestCache(Config{})
	c2.SetBackend(b)

	v, ok := c2.Get("capacity:h1")
	if !ok {
		t.Fatal("expected backend fill on cold read")
	}
	raw, ok := v.(json.RawMessage)
	if !ok {
		t.Fatalf("backend fill value is %T, want json.RawMessage", v)
	}
	var decoded map[string]int
	if err := json.Unmarshal(raw, &decoded); err != nil || decoded["beds"] != 5 {
		t.Fatalf("decoded = %v, err = %v", decoded, err)
	}
}

func TestCacheBackendCorruptPayloadPurged(t *testing.T) {
	b, mr := newTestBackend(t)

	c, _ := newTestCache(Config{})
	c.SetBackend(b)

	mr.Set("test:bad", "not json")

	if _, ok := c.Get("bad"); ok {
		t.Fatal("corrupt payload should read as a miss")
	}
	if mr.Exists("test:bad") {
		t.Fatal("corrupt payload should be deleted from the backend")
	}
}

func TestCacheBackendStaleFill(t *testing.T) {
	b, _ := newTestBackend(t)

	c, clock := newTestCache(Config{})
	c.SetBackend(b)

	c.StoreTTL("k", "old", PriorityMedium, time.Minute)

	// New cache instance, advanced clock: the persisted entry is expired.
	c2, clock2 := newTestCache(Config{})
	c2.SetBackend(b)
	*clock2 = clock.Add(time.Hour)

	v, fresh, ok := c2.GetStale("k")
	if !ok {
		t.Fatal("stale backend entry should still be readable via GetStale")
	}
	if fresh {
		t.Fatal("expired backend entry reported fresh")
	}
	raw, isRaw := v.(json.RawMessage)
	if !isRaw || string(raw) != `"old"` {
		t.Fatalf("stale value = %#v", v)
	}
}
