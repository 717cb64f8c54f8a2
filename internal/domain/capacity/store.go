// Package capacity keeps hospital capacity snapshots fast to read and warm.
// The SnapshotStore is a read-through accessor over the hospital directory,
// and the Fanout republishes live capacity updates while refreshing the
// cache.
package capacity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/capacity-router/internal/domain/hospital"
	"github.com/ehr/capacity-router/internal/platform/cache"
)

// DefaultCapacityTTL reflects how quickly bed counts go stale.
const DefaultCapacityTTL = 5 * time.Minute

// staleDataSource marks snapshots served from cache after the live source
// failed, so callers can tell degraded data from live data.
const staleDataSource = "cache"

func capacityKey(id string) string {
	return "capacity:" + id
}

func nearbyKey(lat, lng, radiusKm float64, f hospital.NearbyFilters) string {
	return fmt.Sprintf("nearby:%.4f:%.4f:%.1f:%s:%d:%d:%.2f",
		lat, lng, radiusKm, f.Specialization, f.MinTraumaLevel, f.MinAvailableBeds, f.MaxOccupancy)
}

// SnapshotStore is the read-through accessor for capacity and nearby
// lookups. Hits return immediately; misses fetch from the directory and warm
// the cache; a failed fetch falls back to the last known good cached value
// when one exists.
type SnapshotStore struct {
	dir    hospital.Directory
	cache  *cache.Cache
	logger zerolog.Logger
	ttl    time.Duration
}

// NewSnapshotStore builds a store with the default capacity TTL.
func NewSnapshotStore(dir hospital.Directory, c *cache.Cache, logger zerolog.Logger) *SnapshotStore {
	return &SnapshotStore{dir: dir, cache: c, logger: logger, ttl: DefaultCapacityTTL}
}

// SetCapacityTTL overrides the snapshot TTL. Must be called before the store
// is shared.
func (s *SnapshotStore) SetCapacityTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}

// GetCapacity returns the snapshot for one hospital.
func (s *SnapshotStore) GetCapacity(ctx context.Context, id string) (*hospital.Capacity, error) {
	key := capacityKey(id)
	if v, fresh, ok := s.cache.GetStale(key); ok && fresh {
		if c, ok := decodeCapacity(v); ok {
			return c, nil
		}
	}

	c, err := s.dir.FetchCapacity(ctx, id)
	if err != nil {
		if errors.Is(err, hospital.ErrSourceUnavailable) {
			if v, _, ok := s.cache.GetStale(key); ok {
				if stale, ok := decodeCapacity(v); ok {
					s.logger.Warn().Str("hospital_id", id).Msg("capacity source down, serving stale snapshot")
					return markStale(stale), nil
				}
			}
		}
		return nil, err
	}

	s.cache.StoreTTL(key, c, cache.PriorityMedium, s.ttl)
	return c, nil
}

// GetCapacities returns snapshots for the given hospitals. Cached entries
// are used where fresh; the rest are batch-fetched. When the source is down,
// whatever stale snapshots exist are returned; the error surfaces only when
// nothing at all is available.
func (s *SnapshotStore) GetCapacities(ctx context.Context, ids []string) ([]*hospital.Capacity, error) {
	out := make([]*hospital.Capacity, 0, len(ids))
	var missing []string
	for _, id := range ids {
		if v, fresh, ok := s.cache.GetStale(capacityKey(id)); ok && fresh {
			if c, ok := decodeCapacity(v); ok {
				out = append(out, c)
				continue
			}
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := s.dir.FetchCapacities(ctx, missing)
	if err != nil {
		for _, id := range missing {
			if v, _, ok := s.cache.GetStale(capacityKey(id)); ok {
				if stale, ok := decodeCapacity(v); ok {
					out = append(out, markStale(stale))
				}
			}
		}
		if len(out) == 0 {
			return nil, err
		}
		s.logger.Warn().Int("served", len(out)).Int("requested", len(ids)).
			Msg("capacity source down, serving stale snapshots")
		return out, nil
	}

	for _, c := range fetched {
		s.cache.StoreTTL(capacityKey(c.HospitalID), c, cache.PriorityMedium, s.ttl)
		out = append(out, c)
	}
	return out, nil
}

// GetNearby returns hospitals with their snapshots within radiusKm of the
// given point.
func (s *SnapshotStore) GetNearby(ctx context.Context, lat, lng, radiusKm float64) ([]*hospital.Candidate, error) {
	return s.GetNearbyFiltered(ctx, lat, lng, radiusKm, hospital.NearbyFilters{})
}

// GetNearbyFiltered is GetNearby with source-side filters; the routing
// service drives its candidate query through this.
func (s *SnapshotStore) GetNearbyFiltered(ctx context.Context, lat, lng, radiusKm float64, filters hospital.NearbyFilters) ([]*hospital.Candidate, error) {
	key := nearbyKey(lat, lng, radiusKm, filters)
	if v, fresh, ok := s.cache.GetStale(key); ok && fresh {
		if cands, ok := decodeCandidates(v); ok {
			return cands, nil
		}
	}

	cands, err := s.dir.FetchNearby(ctx, lat, lng, radiusKm, filters)
	if err != nil {
		if errors.Is(err, hospital.ErrSourceUnavailable) {
			if v, _, ok := s.cache.GetStale(key); ok {
				if stale, ok := decodeCandidates(v); ok {
					s.logger.Warn().Msg("capacity source down, serving stale nearby result")
					return markStaleCandidates(stale), nil
				}
			}
		}
		return nil, err
	}

	s.cache.StoreTTL(key, cands, cache.PriorityMedium, s.ttl)
	return cands, nil
}

// WarmUp prefetches snapshots for the given hospitals so first reads hit the
// cache. The server calls it at startup for the watched hospital set.
func (s *SnapshotStore) WarmUp(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.GetCapacities(ctx, ids)
	return err
}

func markStale(c *hospital.Capacity) *hospital.Capacity {
	out := c.Clone()
	out.DataSource = staleDataSource
	out.IsRealTime = false
	return out
}

func markStaleCandidates(cands []*hospital.Candidate) []*hospital.Candidate {
	out := make([]*hospital.Candidate, len(cands))
	for i, c := range cands {
		out[i] = &hospital.Candidate{Hospital: c.Hospital, Capacity: c.Capacity}
		if c.Capacity != nil {
			out[i].Capacity = markStale(c.Capacity)
		}
	}
	return out
}

// decodeCapacity handles both live *hospital.Capacity values and the raw
// JSON form a persistence backend returns after a restart. Anything else is
// treated as a miss.
func decodeCapacity(v interface{}) (*hospital.Capacity, bool) {
	switch t := v.(type) {
	case *hospital.Capacity:
		return t, true
	case json.RawMessage:
		var c hospital.Capacity
		if err := json.Unmarshal(t, &c); err == nil && c.HospitalID != "" {
			return &c, true
		}
	}
	return nil, false
}

func decodeCandidates(v interface{}) ([]*hospital.Candidate, bool) {
	switch t := v.(type) {
	case []*hospital.Candidate:
		return t, true
	case json.RawMessage:
		var cands []*hospital.Candidate
		if err := json.Unmarshal(t, &cands); err == nil {
			return cands, true
		}
	}
	return nil, false
}
