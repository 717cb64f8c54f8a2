// Package cache provides the TTL/priority cache the capacity engine keeps
// its expensive lookups in. Entries expire per priority tier (or a caller
// TTL), and a priority-weighted eviction pass bounds entry count and memory
// whenever the configured ceilings are exceeded. The cache is a performance
// layer, not a system of record: backend failures and corrupt persisted
// entries are absorbed, never surfaced to callers.
package cache

import (
	"context"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Priority orders entries for eviction and selects the default TTL. Lower
// tiers are evicted first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

// TTL returns the default time-to-live for the tier.
func (p Priority) TTL() time.Duration {
	switch p {
	case PriorityCritical:
		return 5 * time.Minute
	case PriorityHigh:
		return 15 * time.Minute
	case PriorityMedium:
		return time.Hour
	default:
		return 6 * time.Hour
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// fallbackEntrySize is charged against the size ceiling when a value cannot
// be JSON-encoded for measurement.
const fallbackEntrySize = 64

const backendTimeout = 2 * time.Second

type entry struct {
	key       string
	value     interface{}
	createdAt time.Time
	expiresAt time.Time
	priority  Priority
	size      int
}

// Config holds the cache ceilings. Zero values take the defaults
// (1000 entries, 50 MB, 1 minute sweep).
type Config struct {
	MaxEntries    int
	MaxBytes      int64
	SweepInterval time.Duration
}

// Stats is a point-in-time snapshot of cache usage and effectiveness.
type Stats struct {
	Entries     int                      `json:"entries"`
	TotalBytes  int64                    `json:"total_bytes"`
	PerPriority map[string]PriorityStats `json:"per_priority"`
	Expired     uint64                   `json:"expired"`
	Hits        uint64                   `json:"hits"`
	Misses      uint64                   `json:"misses"`
	HitRate     float64                  `json:"hit_rate"`
	MissRate    float64                  `json:"miss_rate"`
}

// PriorityStats is per-tier usage.
type PriorityStats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// Cache is a thread-safe in-memory key/value store with per-entry expiry and
// priority-weighted eviction. An optional Backend adds durable write-through
// persistence behind the same interface.
type Cache struct {
	cfg     Config
	logger  zerolog.Logger
	backend Backend
	now     func() time.Time // injectable for deterministic tests

	mu      sync.Mutex
	entries map[string]*entry
	hits    uint64
	misses  uint64
	expired uint64
}

// New creates a Cache with the given ceilings.
func New(cfg Config, logger zerolog.Logger) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 1000
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 50 << 20
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	return &Cache{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// SetBackend attaches a durable persistence backend. Must be called before
// the cache is shared across goroutines.
func (c *Cache) SetBackend(b Backend) {
	c.backend = b
}

// Store inserts or overwrites an entry with the priority's default TTL.
func (c *Cache) Store(key string, value interface{}, prio Priority) {
	c.StoreTTL(key, value, prio, 0)
}

// StoreTTL inserts or overwrites an entry with an explicit TTL. A
// non-positive ttl falls back to the priority default. Every store triggers
// an eviction pass.
func (c *Cache) StoreTTL(key string, value interface{}, prio Priority, ttl time.Duration) {
	if ttl <= 0 {
		ttl = prio.TTL()
	}
	now := c.now()

	size := fallbackEntrySize
	encoded, err := json.Marshal(value)
	if err == nil {
		size = len(encoded)
	} else {
		encoded = nil
	}

	e := &entry{
		key:       key,
		value:     value,
		createdAt: now,
		expiresAt: now.Add(ttl),
		priority:  prio,
		size:      size,
	}

	c.mu.Lock()
	c.entries[key] = e
	c.evictLocked(now)
	c.mu.Unlock()

	if c.backend != nil && encoded != nil {
		c.writeBackend(key, encoded, e, ttl)
	}
}

// Get returns the value for key, or false if the key is unknown or expired.
// Expired entries are purged on read. A successful return counts as a hit.
func (c *Cache) Get(key string) (interface{}, bool) {
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if now.Before(e.expiresAt) {
			c.hits++
			v := e.value
			c.mu.Unlock()
			return v, true
		}
		delete(c.entries, key)
		c.expired++
	}
	c.mu.Unlock()

	if c.backend != nil {
		if v, ok := c.fillFromBackend(key, now, false); ok {
			c.mu.Lock()
			c.hits++
			c.mu.Unlock()
			return v, true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return nil, false
}

// GetStale returns the value for key even when its TTL has elapsed, together
// with whether the entry is still fresh. Unlike Get it never purges: the
// snapshot store uses it to serve last-known-good data when the live source
// is down. Fresh reads count as hits; stale and absent reads as misses.
func (c *Cache) GetStale(key string) (value interface{}, fresh bool, ok bool) {
	now := c.now()

	c.mu.Lock()
	if e, found := c.entries[key]; found {
		fresh = now.Before(e.expiresAt)
		if fresh {
			c.hits++
		} else {
			c.misses++
		}
		v := e.value
		c.mu.Unlock()
		return v, fresh, true
	}
	c.mu.Unlock()

	if c.backend != nil {
		if v, found := c.fillFromBackend(key, now, true); found {
			c.mu.Lock()
			if e, stillThere := c.entries[key]; stillThere && now.Before(e.expiresAt) {
				c.hits++
				c.mu.Unlock()
				return v, true, true
			}
			c.misses++
			c.mu.Unlock()
			return v, false, true
		}
	}

	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
	return nil, false, false
}

// Exists reports whether Get would return a value for key.
func (c *Cache) Exists(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Remove drops the entry for key from memory and the backend.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	c.deleteBackend(key)
}

// Clear drops every entry and resets the hit/miss counters.
func (c *Cache) Clear() {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	c.entries = make(map[string]*entry)
	c.hits, c.misses, c.expired = 0, 0, 0
	c.mu.Unlock()

	for _, k := range keys {
		c.deleteBackend(k)
	}
}

// Stats returns current usage and hit/miss rates.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Entries:     len(c.entries),
		PerPriority: make(map[string]PriorityStats),
		Expired:     c.expired,
		Hits:        c.hits,
		Misses:      c.misses,
	}
	for _, e := range c.entries {
		s.TotalBytes += int64(e.size)
		ps := s.PerPriority[e.priority.String()]
		ps.Entries++
		ps.Bytes += int64(e.size)
		s.PerPriority[e.priority.String()] = ps
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
		s.MissRate = float64(c.misses) / float64(total)
	}
	return s
}

// Run drives the scheduled sweep until ctx is cancelled, purging expired
// entries and enforcing the ceilings even when no stores are happening.
func (c *Cache) Run(ctx context.Context) {
	t := time.NewTicker(c.cfg.SweepInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			c.mu.Lock()
			before := len(c.entries)
			c.evictLocked(now)
			removed := before - len(c.entries)
			c.mu.Unlock()
			if removed > 0 {
				c.logger.Debug().Int("removed", removed).Msg("cache sweep")
			}
		}
	}
}

// evictLocked first purges expired entries. If the entry count or the total
// estimated size still exceeds a ceiling, it removes entries lowest priority
// first, oldest first, until usage drops to roughly 80% of each ceiling.
// Callers hold c.mu.
func (c *Cache) evictLocked(now time.Time) {
	var totalSize int64
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			c.expired++
			continue
		}
		totalSize += int64(e.size)
	}

	if len(c.entries) <= c.cfg.MaxEntries && totalSize <= c.cfg.MaxBytes {
		return
	}

	targetEntries := int(math.Ceil(0.8 * float64(c.cfg.MaxEntries)))
	targetBytes := int64(math.Ceil(0.8 * float64(c.cfg.MaxBytes)))

	victims := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		victims = append(victims, e)
	}
	sort.Slice(victims, func(i, j int) bool {
		if victims[i].priority != victims[j].priority {
			return victims[i].priority < victims[j].priority
		}
		return victims[i].createdAt.Before(victims[j].createdAt)
	})

	for _, v := range victims {
		if len(c.entries) <= targetEntries && totalSize <= targetBytes {
			break
		}
		delete(c.entries, v.key)
		totalSize -= int64(v.size)
	}
}
