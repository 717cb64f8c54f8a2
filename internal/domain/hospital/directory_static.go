package hospital

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// StaticDirectory is a Directory over a fixed in-memory candidate set. The
// routing service uses one as its fallback when the live source is down, and
// small deployments can run entirely from one.
type StaticDirectory struct {
	candidates []*Candidate
}

// NewStaticDirectory copies the given candidate slice.
func NewStaticDirectory(candidates []*Candidate) *StaticDirectory {
	out := make([]*Candidate, len(candidates))
	copy(out, candidates)
	return &StaticDirectory{candidates: out}
}

// LoadStaticDirectory reads a JSON candidate list from path. The file format
// is the wire format of Candidate: [{"hospital": {...}, "capacity": {...}}].
func LoadStaticDirectory(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fallback set: %w", err)
	}
	var candidates []*Candidate
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, fmt.Errorf("parse fallback set %s: %w", path, err)
	}
	return &StaticDirectory{candidates: candidates}, nil
}

// Candidates returns the full set, unfiltered.
func (d *StaticDirectory) Candidates() []*Candidate {
	out := make([]*Candidate, len(d.candidates))
	copy(out, d.candidates)
	return out
}

func (d *StaticDirectory) FetchNearby(_ context.Context, lat, lng, radiusKm float64, filters NearbyFilters) ([]*Candidate, error) {
	var out []*Candidate
	for _, c := range d.candidates {
		if DistanceKm(lat, lng, c.Hospital.Latitude, c.Hospital.Longitude) > radiusKm {
			continue
		}
		if !filters.Match(c) {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return DistanceKm(lat, lng, out[i].Hospital.Latitude, out[i].Hospital.Longitude) <
			DistanceKm(lat, lng, out[j].Hospital.Latitude, out[j].Hospital.Longitude)
	})
	return out, nil
}

func (d *StaticDirectory) FetchCapacity(_ context.Context, id string) (*Capacity, error) {
	for _, c := range d.candidates {
		if c.Hospital.ID == id {
			if c.Capacity == nil {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
			}
			return c.Capacity, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (d *StaticDirectory) FetchCapacities(_ context.Context, ids []string) ([]*Capacity, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []*Capacity
	for _, c := range d.candidates {
		if want[c.Hospital.ID] && c.Capacity != nil {
			out = append(out, c.Capacity)
		}
	}
	return out, nil
}
