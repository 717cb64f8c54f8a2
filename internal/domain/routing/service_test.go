package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/capacity-router/internal/domain/hospital"
)

// mockStore is a scriptable Store for service tests.
type mockStore struct {
	filtered    []*hospital.Candidate
	broad       []*hospital.Candidate
	down        bool
	lastFilters hospital.NearbyFilters
}

func (m *mockStore) GetNearbyFiltered(_ context.Context, lat, lng, radiusKm float64, filters hospital.NearbyFilters) ([]*hospital.Candidate, error) {
	m.lastFilters = filters
	if m.down {
		return nil, fmt.Errorf("%w: connection refused", hospital.ErrSourceUnavailable)
	}
	return m.filtered, nil
}

func (m *mockStore) GetNearby(_ context.Context, lat, lng, radiusKm float64) ([]*hospital.Candidate, error) {
	if m.down {
		return nil, fmt.Errorf("%w: connection refused", hospital.ErrSourceUnavailable)
	}
	return m.broad, nil
}

func candidate(id string, lat, lng float64, traumaLevel, availableBeds int) *hospital.Candidate {
	return &hospital.Candidate{
		Hospital: &hospital.Hospital{
			ID: id, Name: id,
			Latitude: lat, Longitude: lng,
			TraumaLevel:          traumaLevel,
			TreatmentSuccessRate: 0.9,
			AvgWaitMinutes:       20,
		},
		Capacity: &hospital.Capacity{
			HospitalID: id, TotalBeds: 100, AvailableBeds: availableBeds,
		},
	}
}

func newServiceFixture(store Store, fallback *hospital.StaticDirectory) *Service {
	return NewService(store, fallback, DefaultConfig(), zerolog.Nop())
}

func TestRecommendPicksHighestScore(t *testing.T) {
	// h1 is a close level-1 trauma center with plenty of beds; h2 is farther
	// with fewer beds. For a critical patient h1 must win.
	store := &mockStore{filtered: []*hospital.Candidate{
		candidate("h2", 37.9, -122.6, 3, 4),
		candidate("h1", 37.78, -122.42, 1, 40),
	}}
	svc := newServiceFixture(store, nil)

	rec, err := svc.Recommend(context.Background(), Request{Lat: 37.7749, Lng: -122.4194, Severity: 8.5})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec.Hospital.ID != "h1" {
		t.Fatalf("picked %s, want h1", rec.Hospital.ID)
	}
	if rec.Degraded || rec.Broadened {
		t.Fatal("live scored result should not be flagged degraded or broadened")
	}
	if len(rec.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(rec.Candidates))
	}
	if rec.Candidates[0].Score < rec.Candidates[1].Score {
		t.Fatal("candidates should be ordered best first")
	}
	if rec.Score != rec.Candidates[0].Score {
		t.Fatal("recommendation score should match the top candidate")
	}
}

func TestRecommendFiltersBySeverity(t *testing.T) {
	store := &mockStore{filtered: []*hospital.Candidate{candidate("h1", 37.78, -122.42, 1, 40)}}
	svc := newServiceFixture(store, nil)
	ctx := context.Background()

	// Critical: trauma center required, occupancy ceiling lifted.
	if _, err := svc.Recommend(ctx, Request{Severity: 9}); err != nil {
		t.Fatal(err)
	}
	f := store.lastFilters
	if f.MinTraumaLevel != 1 || f.MaxOccupancy != 1.0 || f.MinAvailableBeds != 1 {
		t.Fatalf("critical filters = %+v", f)
	}

	// Urgent but not critical: bed floor of 1, routine occupancy ceiling.
	if _, err := svc.Recommend(ctx, Request{Severity: 7.5}); err != nil {
		t.Fatal(err)
	}
	f = store.lastFilters
	if f.MinTraumaLevel != 0 || f.MaxOccupancy != 0.95 || f.MinAvailableBeds != 1 {
		t.Fatalf("urgent filters = %+v", f)
	}

	// Routine: three-bed floor.
	if _, err := svc.Recommend(ctx, Request{Severity: 3, Specialization: "cardiology"}); err != nil {
		t.Fatal(err)
	}
	f = store.lastFilters
	if f.MinAvailableBeds != 3 || f.Specialization != "cardiology" {
		t.Fatalf("routine filters = %+v", f)
	}
}

func TestRecommendBroadensWhenFilteredEmpty(t *testing.T) {
	near := candidate("near", 37.78, -122.42, 3, 0)
	far := candidate("far", 37.9, -122.6, 1, 0)
	store := &mockStore{filtered: nil, broad: []*hospital.Candidate{far, near}}
	svc := newServiceFixture(store, nil)

	rec, err := svc.Recommend(context.Background(), Request{Lat: 37.7749, Lng: -122.4194, Severity: 5})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if !rec.Broadened {
		t.Fatal("empty filtered result should produce a broadened recommendation")
	}
	if rec.Hospital.ID != "near" {
		t.Fatalf("broadened pick = %s, want the nearest hospital", rec.Hospital.ID)
	}
}

func TestRecommendStaticFallbackWhenSourceDown(t *testing.T) {
	fallback := hospital.NewStaticDirectory([]*hospital.Candidate{
		candidate("s1", 37.78, -122.42, 1, 40),
		candidate("s2", 37.79, -122.43, 2, 20),
	})
	store := &mockStore{down: true}
	svc := newServiceFixture(store, fallback)

	rec, err := svc.Recommend(context.Background(), Request{Lat: 37.7749, Lng: -122.4194, Severity: 8.5})
	if err != nil {
		t.Fatalf("Recommend with fallback: %v", err)
	}
	if !rec.Degraded {
		t.Fatal("static result should be flagged degraded")
	}
	if rec.Hospital == nil {
		t.Fatal("expected a hospital from the static set")
	}
}

func TestRecommendStaticBroadening(t *testing.T) {
	// The static set has no level-1 trauma center, so a critical request
	// broadens within the static set too.
	fallback := hospital.NewStaticDirectory([]*hospital.Candidate{
		candidate("s1", 37.78, -122.42, 3, 40),
	})
	store := &mockStore{down: true}
	svc := newServiceFixture(store, fallback)

	rec, err := svc.Recommend(context.Background(), Request{Lat: 37.7749, Lng: -122.4194, Severity: 9})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if !rec.Degraded || !rec.Broadened {
		t.Fatalf("flags = degraded:%v broadened:%v, want both", rec.Degraded, rec.Broadened)
	}
	if rec.Hospital.ID != "s1" {
		t.Fatalf("pick = %s", rec.Hospital.ID)
	}
}

func TestRecommendNoCandidatesAnywhere(t *testing.T) {
	store := &mockStore{down: true}

	// No fallback configured.
	svc := newServiceFixture(store, nil)
	if _, err := svc.Recommend(context.Background(), Request{Severity: 5}); !errors.Is(err, hospital.ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates", err)
	}

	// Fallback configured but empty within range.
	empty := hospital.NewStaticDirectory(nil)
	svc = newServiceFixture(store, empty)
	if _, err := svc.Recommend(context.Background(), Request{Severity: 5}); !errors.Is(err, hospital.ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates", err)
	}
}

func TestFindOptimal(t *testing.T) {
	store := &mockStore{filtered: []*hospital.Candidate{candidate("h1", 37.78, -122.42, 1, 40)}}
	svc := newServiceFixture(store, nil)

	h, err := svc.FindOptimal(context.Background(), Request{Lat: 37.7749, Lng: -122.4194, Severity: 6})
	if err != nil {
		t.Fatalf("FindOptimal: %v", err)
	}
	if h.ID != "h1" {
		t.Fatalf("got %s", h.ID)
	}
}

func TestRecommendDefaultsMaxDistance(t *testing.T) {
	store := &mockStore{filtered: []*hospital.Candidate{candidate("h1", 37.78, -122.42, 1, 40)}}
	svc := NewService(store, nil, Config{}, zerolog.Nop())

	if _, err := svc.Recommend(context.Background(), Request{Severity: 5}); err != nil {
		t.Fatalf("zero config should take defaults: %v", err)
	}
}

func TestNewServicePartialConfigKeepsOverrides(t *testing.T) {
	store := &mockStore{filtered: []*hospital.Candidate{candidate("h1", 37.78, -122.42, 1, 40)}}
	svc := NewService(store, nil, Config{MinBedsRoutine: 5}, zerolog.Nop())

	if svc.cfg.MinBedsRoutine != 5 {
		t.Fatalf("MinBedsRoutine = %d, override was discarded", svc.cfg.MinBedsRoutine)
	}
	def := DefaultConfig()
	if svc.cfg.DefaultMaxDistanceMiles != def.DefaultMaxDistanceMiles ||
		svc.cfg.CriticalSeverity != def.CriticalSeverity ||
		svc.cfg.UrgentSeverity != def.UrgentSeverity ||
		svc.cfg.MinBedsUrgent != def.MinBedsUrgent ||
		svc.cfg.MaxOccupancyRoutine != def.MaxOccupancyRoutine {
		t.Fatalf("unset fields should take defaults, got %+v", svc.cfg)
	}

	// The override flows into the routine-severity filter.
	if _, err := svc.Recommend(context.Background(), Request{Severity: 3}); err != nil {
		t.Fatal(err)
	}
	if store.lastFilters.MinAvailableBeds != 5 {
		t.Fatalf("routine bed floor = %d, want the overridden 5", store.lastFilters.MinAvailableBeds)
	}
}
