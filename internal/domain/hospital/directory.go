package hospital

import "context"

// NearbyFilters narrows a FetchNearby query at the source. Zero values mean
// "no constraint".
type NearbyFilters struct {
	// Specialization requires the hospital to carry this tag.
	Specialization string `json:"specialization,omitempty"`
	// MinTraumaLevel requires a trauma capability of at least this level.
	// Level 1 is the most capable, so the constraint is TraumaLevel <= n.
	MinTraumaLevel int `json:"min_trauma_level,omitempty"`
	// MinAvailableBeds requires at least this many open beds.
	MinAvailableBeds int `json:"min_available_beds,omitempty"`
	// MaxOccupancy excludes hospitals above this occupancy rate.
	MaxOccupancy float64 `json:"max_occupancy,omitempty"`
}

// IsZero reports whether the filters impose no constraints.
func (f NearbyFilters) IsZero() bool {
	return f == NearbyFilters{}
}

// Match applies the filters to a candidate in memory. Source adapters that
// can filter server-side (Postgres) do so; the static directory and the
// routing fallback use this.
func (f NearbyFilters) Match(c *Candidate) bool {
	if f.Specialization != "" && !c.Hospital.HasSpecialization(f.Specialization) {
		return false
	}
	if f.MinTraumaLevel > 0 && c.Hospital.TraumaLevel > f.MinTraumaLevel {
		return false
	}
	if f.MinAvailableBeds > 0 {
		if c.Capacity == nil || c.Capacity.AvailableBeds < f.MinAvailableBeds {
			return false
		}
	}
	if f.MaxOccupancy > 0 {
		if c.Capacity == nil || c.Capacity.OccupancyRate() > f.MaxOccupancy {
			return false
		}
	}
	return true
}

// Directory is the external fetch capability for hospital profiles and
// capacity snapshots. Implementations report an unreachable source by
// returning an error wrapping ErrSourceUnavailable; a missing record is
// ErrNotFound.
type Directory interface {
	// FetchNearby returns hospitals within radiusKm of the given point,
	// optionally narrowed by filters, paired with their latest snapshots.
	FetchNearby(ctx context.Context, lat, lng, radiusKm float64, filters NearbyFilters) ([]*Candidate, error)

	// FetchCapacity returns the latest snapshot for one hospital.
	FetchCapacity(ctx context.Context, id string) (*Capacity, error)

	// FetchCapacities returns the latest snapshots for the given hospitals.
	// Unknown ids are omitted from the result rather than failing the batch.
	FetchCapacities(ctx context.Context, ids []string) ([]*Capacity, error)
}
