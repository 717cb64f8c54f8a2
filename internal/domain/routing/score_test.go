package routing

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ehr/capacity-router/internal/domain/hospital"
)

const (
	patientLat = 37.7749
	patientLng = -122.4194
)

func profile(id string, lat, lng float64) *hospital.Hospital {
	return &hospital.Hospital{
		ID:       id,
		Latitude: lat, Longitude: lng,
		TraumaLevel:          2,
		TreatmentSuccessRate: 0.9,
		AvgWaitMinutes:       30,
	}
}

func beds(available, total int) *hospital.Capacity {
	return &hospital.Capacity{TotalBeds: total, AvailableBeds: available}
}

func TestScoreDeterministic(t *testing.T) {
	h := profile("h1", 37.78, -122.42)
	c := beds(12, 100)
	a := Score(h, c, patientLat, patientLng, 8.5)
	b := Score(h, c, patientLat, patientLng, 8.5)
	if a != b {
		t.Fatalf("identical inputs scored %f and %f", a, b)
	}
}

func TestScoreComponents(t *testing.T) {
	// Colocated hospital so the distance term is zero; isolate the rest.
	h := &hospital.Hospital{Latitude: patientLat, Longitude: patientLng}

	base := Score(h, nil, patientLat, patientLng, 0)
	if base != 100 {
		t.Fatalf("bare score = %f, want 100", base)
	}

	cases := []struct {
		name     string
		capacity *hospital.Capacity
		severity float64
		want     float64
	}{
		{"many beds", beds(500, 1000), 0, 100 + 20},
		{"some beds", beds(6, 10), 0, 100 + 10},
		{"few beds neither bonus nor penalty", beds(3, 10), 0, 100},
		{"no beds", beds(0, 100), 0, 100 - 50 - 30}, // plus full occupancy penalty
		{"high occupancy", beds(5, 100), 0, 100 - 30},
		{"raised occupancy", beds(15, 100), 0, 100 + 20 - 15},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Score(h, tc.capacity, patientLat, patientLng, tc.severity); got != tc.want {
				t.Errorf("Score = %f, want %f", got, tc.want)
			}
		})
	}
}

func TestScoreTraumaBonusOnlyWhenCritical(t *testing.T) {
	h := &hospital.Hospital{Latitude: patientLat, Longitude: patientLng, TraumaLevel: 2}

	routine := Score(h, nil, patientLat, patientLng, 7.9)
	critical := Score(h, nil, patientLat, patientLng, 8.0)
	if critical-routine != 20 {
		t.Fatalf("trauma bonus = %f, want 20 (level 2 x 10)", critical-routine)
	}
}

func TestScoreDistancePenalty(t *testing.T) {
	near := profile("near", 37.78, -122.42)
	far := profile("far", 37.9, -122.6)
	c := beds(12, 100)

	if Score(near, c, patientLat, patientLng, 5) <= Score(far, c, patientLat, patientLng, 5) {
		t.Fatal("nearer hospital should outscore the farther one, all else equal")
	}
}

func TestScoreSuccessRateAndWait(t *testing.T) {
	h := &hospital.Hospital{
		Latitude: patientLat, Longitude: patientLng,
		TreatmentSuccessRate: 0.95,
		AvgWaitMinutes:       45,
	}
	want := 100.0 + 0.95*20 - 45*0.1
	if got := Score(h, nil, patientLat, patientLng, 0); got != want {
		t.Fatalf("Score = %f, want %f", got, want)
	}
}

// A critical patient between a level-1 trauma center 5 miles out with 15 of
// 100 beds free and a level-3 hospital 2 miles out with 2 of 50 beds free
// must be routed to the trauma center: bed availability and occupancy
// outweigh the shorter drive.
func TestScoreTraumaCenterBeatsNearerSaturatedHospital(t *testing.T) {
	// Offsets chosen so the great-circle distances are 5 and 2 statute miles.
	h1 := &hospital.Hospital{
		ID: "h1", Latitude: patientLat + 0.072370, Longitude: patientLng,
		TraumaLevel: 1,
	}
	h2 := &hospital.Hospital{
		ID: "h2", Latitude: patientLat + 0.028948, Longitude: patientLng,
		TraumaLevel: 3,
	}
	c1 := beds(15, 100)
	c2 := beds(2, 50)

	s1 := Score(h1, c1, patientLat, patientLng, 8.5)
	s2 := Score(h2, c2, patientLat, patientLng, 8.5)
	if s1 <= s2 {
		t.Fatalf("trauma center scored %f, nearer saturated hospital %f; want the trauma center ahead", s1, s2)
	}

	// And the service ranks them the same way.
	store := &mockStore{filtered: []*hospital.Candidate{
		{Hospital: h2, Capacity: c2},
		{Hospital: h1, Capacity: c1},
	}}
	svc := NewService(store, nil, DefaultConfig(), zerolog.Nop())
	rec, err := svc.Recommend(context.Background(), Request{Lat: patientLat, Lng: patientLng, Severity: 8.5})
	if err != nil {
		t.Fatalf("Recommend: %v", err)
	}
	if rec.Hospital.ID != "h1" {
		t.Fatalf("picked %s, want the level-1 trauma center", rec.Hospital.ID)
	}
}

func TestScoreCanGoNegative(t *testing.T) {
	// A distant, saturated hospital with no free beds.
	h := &hospital.Hospital{Latitude: 38.5, Longitude: -121.5}
	if got := Score(h, beds(0, 100), patientLat, patientLng, 3); got >= 0 {
		t.Fatalf("expected negative score, got %f", got)
	}
}
