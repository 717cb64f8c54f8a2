package routing

import (
	"context"
	"errors"
	"sort"

	"github.com/rs/zerolog"

	"github.com/ehr/capacity-router/internal/domain/hospital"
)

// Config holds the caller-supplied routing thresholds.
type Config struct {
	// DefaultMaxDistanceMiles bounds the search when the request does not.
	DefaultMaxDistanceMiles float64
	// CriticalSeverity switches on the trauma-center requirement and the
	// relaxed occupancy ceiling.
	CriticalSeverity float64
	// UrgentSeverity lowers the minimum-bed floor.
	UrgentSeverity float64
	// MinBedsUrgent / MinBedsRoutine are the available-bed floors below and
	// above UrgentSeverity.
	MinBedsUrgent  int
	MinBedsRoutine int
	// MaxOccupancyRoutine excludes near-saturated hospitals for non-critical
	// patients. Critical patients accept any occupancy.
	MaxOccupancyRoutine float64
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		DefaultMaxDistanceMiles: 30,
		CriticalSeverity:        8.0,
		UrgentSeverity:          7.0,
		MinBedsUrgent:           1,
		MinBedsRoutine:          3,
		MaxOccupancyRoutine:     0.95,
	}
}

// Store is the slice of the snapshot store the routing service needs.
type Store interface {
	GetNearbyFiltered(ctx context.Context, lat, lng, radiusKm float64, filters hospital.NearbyFilters) ([]*hospital.Candidate, error)
	GetNearby(ctx context.Context, lat, lng, radiusKm float64) ([]*hospital.Candidate, error)
}

// Request is one routing question: where is the patient, how sick, and what
// constraints apply.
type Request struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	Severity         float64 `json:"severity"`
	Specialization   string  `json:"specialization,omitempty"`
	MaxDistanceMiles float64 `json:"max_distance_miles,omitempty"`
}

// ScoredCandidate is an ephemeral ranking entry, produced and consumed
// within one routing call.
type ScoredCandidate struct {
	Hospital *hospital.Hospital `json:"hospital"`
	Capacity *hospital.Capacity `json:"capacity,omitempty"`
	Score    float64            `json:"score"`
}

// Recommendation is the full answer to a routing request. Degraded marks
// results built from the static candidate set; Broadened marks the
// nearest-without-scoring fallback used when the filtered query was empty.
type Recommendation struct {
	Hospital   *hospital.Hospital `json:"hospital"`
	Score      float64            `json:"score"`
	Degraded   bool               `json:"degraded,omitempty"`
	Broadened  bool               `json:"broadened,omitempty"`
	Candidates []ScoredCandidate  `json:"candidates,omitempty"`
}

// Service orchestrates candidate retrieval, scoring, and fallbacks. It holds
// no mutable state; every call is independent.
type Service struct {
	store    Store
	fallback *hospital.StaticDirectory
	cfg      Config
	logger   zerolog.Logger
}

// NewService builds a routing service. fallback may be nil when no static
// candidate set is configured. Zero config fields take their defaults
// individually, so a caller may override just the thresholds it cares about.
func NewService(store Store, fallback *hospital.StaticDirectory, cfg Config, logger zerolog.Logger) *Service {
	def := DefaultConfig()
	if cfg.DefaultMaxDistanceMiles <= 0 {
		cfg.DefaultMaxDistanceMiles = def.DefaultMaxDistanceMiles
	}
	if cfg.CriticalSeverity <= 0 {
		cfg.CriticalSeverity = def.CriticalSeverity
	}
	if cfg.UrgentSeverity <= 0 {
		cfg.UrgentSeverity = def.UrgentSeverity
	}
	if cfg.MinBedsUrgent <= 0 {
		cfg.MinBedsUrgent = def.MinBedsUrgent
	}
	if cfg.MinBedsRoutine <= 0 {
		cfg.MinBedsRoutine = def.MinBedsRoutine
	}
	if cfg.MaxOccupancyRoutine <= 0 {
		cfg.MaxOccupancyRoutine = def.MaxOccupancyRoutine
	}
	return &Service{store: store, fallback: fallback, cfg: cfg, logger: logger}
}

// FindOptimal returns the best-matched hospital for the request, or
// ErrNoCandidates when nothing matches anywhere (live or static).
func (s *Service) FindOptimal(ctx context.Context, req Request) (*hospital.Hospital, error) {
	rec, err := s.Recommend(ctx, req)
	if err != nil {
		return nil, err
	}
	return rec.Hospital, nil
}

// Recommend runs the full pipeline and returns the ranked result. The state
// progression per request is fixed: retrieve candidates, then score, then
// select; a failed retrieval substitutes the static set before scoring.
func (s *Service) Recommend(ctx context.Context, req Request) (*Recommendation, error) {
	if req.MaxDistanceMiles <= 0 {
		req.MaxDistanceMiles = s.cfg.DefaultMaxDistanceMiles
	}
	radiusKm := hospital.MilesToKm(req.MaxDistanceMiles)
	filters := s.filtersFor(req)

	cands, err := s.store.GetNearbyFiltered(ctx, req.Lat, req.Lng, radiusKm, filters)
	if err != nil {
		if !errors.Is(err, hospital.ErrSourceUnavailable) {
			return nil, err
		}
		s.logger.Warn().Err(err).Msg("live candidate query failed, using static candidate set")
		return s.recommendStatic(ctx, req, radiusKm, filters)
	}

	if len(cands) == 0 {
		broad, err := s.store.GetNearby(ctx, req.Lat, req.Lng, radiusKm)
		if err != nil {
			if !errors.Is(err, hospital.ErrSourceUnavailable) {
				return nil, err
			}
			return s.recommendStatic(ctx, req, radiusKm, filters)
		}
		if len(broad) == 0 {
			return s.recommendStatic(ctx, req, radiusKm, filters)
		}
		nearest := nearestCandidate(req.Lat, req.Lng, broad)
		return &Recommendation{Hospital: nearest.Hospital, Broadened: true}, nil
	}

	ranked := rank(cands, req)
	return &Recommendation{
		Hospital:   ranked[0].Hospital,
		Score:      ranked[0].Score,
		Candidates: ranked,
	}, nil
}

// recommendStatic applies the same filter and scoring logic to the static
// candidate set.
func (s *Service) recommendStatic(ctx context.Context, req Request, radiusKm float64, filters hospital.NearbyFilters) (*Recommendation, error) {
	if s.fallback == nil {
		return nil, hospital.ErrNoCandidates
	}

	cands, _ := s.fallback.FetchNearby(ctx, req.Lat, req.Lng, radiusKm, filters)
	if len(cands) > 0 {
		ranked := rank(cands, req)
		return &Recommendation{
			Hospital:   ranked[0].Hospital,
			Score:      ranked[0].Score,
			Degraded:   true,
			Candidates: ranked,
		}, nil
	}

	broad, _ := s.fallback.FetchNearby(ctx, req.Lat, req.Lng, radiusKm, hospital.NearbyFilters{})
	if len(broad) == 0 {
		return nil, hospital.ErrNoCandidates
	}
	nearest := nearestCandidate(req.Lat, req.Lng, broad)
	return &Recommendation{Hospital: nearest.Hospital, Degraded: true, Broadened: true}, nil
}

func (s *Service) filtersFor(req Request) hospital.NearbyFilters {
	f := hospital.NearbyFilters{Specialization: req.Specialization}

	if req.Severity >= s.cfg.CriticalSeverity {
		f.MinTraumaLevel = 1
		f.MaxOccupancy = 1.0
	} else {
		f.MaxOccupancy = s.cfg.MaxOccupancyRoutine
	}

	if req.Severity >= s.cfg.UrgentSeverity {
		f.MinAvailableBeds = s.cfg.MinBedsUrgent
	} else {
		f.MinAvailableBeds = s.cfg.MinBedsRoutine
	}
	return f
}

// rank scores every candidate and orders best-first. The sort is stable so
// ties keep input order.
func rank(cands []*hospital.Candidate, req Request) []ScoredCandidate {
	out := make([]ScoredCandidate, len(cands))
	for i, c := range cands {
		out[i] = ScoredCandidate{
			Hospital: c.Hospital,
			Capacity: c.Capacity,
			Score:    Score(c.Hospital, c.Capacity, req.Lat, req.Lng, req.Severity),
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

func nearestCandidate(lat, lng float64, cands []*hospital.Candidate) *hospital.Candidate {
	best := cands[0]
	bestDist := hospital.DistanceKm(lat, lng, best.Hospital.Latitude, best.Hospital.Longitude)
	for _, c := range cands[1:] {
		if d := hospital.DistanceKm(lat, lng, c.Hospital.Latitude, c.Hospital.Longitude); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
