package hospital

import (
	"fmt"
	"time"
)

// Capacity snapshot freshness and pressure thresholds.
const (
	FreshnessWindow       = 10 * time.Minute
	nearCapacityThreshold = 0.85
	atCapacityThreshold   = 0.95
)

// Capacity is a point-in-time snapshot of a hospital's bed and staffing
// situation. Snapshots are never mutated in place; a newer snapshot from the
// source or the live feed supersedes the old one.
type Capacity struct {
	HospitalID         string    `db:"hospital_id" json:"hospital_id"`
	TotalBeds          int       `db:"total_beds" json:"total_beds"`
	AvailableBeds      int       `db:"available_beds" json:"available_beds"`
	ICUBeds            int       `db:"icu_beds" json:"icu_beds"`
	ICUAvailable       int       `db:"icu_available" json:"icu_available"`
	EmergencyBeds      int       `db:"emergency_beds" json:"emergency_beds"`
	EmergencyAvailable int       `db:"emergency_available" json:"emergency_available"`
	StaffOnDuty        int       `db:"staff_on_duty" json:"staff_on_duty"`
	PatientsInQueue    int       `db:"patients_in_queue" json:"patients_in_queue"`
	AvgWaitMinutes     float64   `db:"avg_wait_minutes" json:"avg_wait_minutes"`
	DataSource         string    `db:"data_source" json:"data_source"`
	IsRealTime         bool      `db:"is_real_time" json:"is_real_time"`
	LastUpdated        time.Time `db:"last_updated" json:"last_updated"`
}

// OccupancyRate returns the fraction of total beds currently occupied.
// A hospital with no beds reports 1.0 (fully occupied).
func (c *Capacity) OccupancyRate() float64 {
	if c.TotalBeds == 0 {
		return 1.0
	}
	return float64(c.TotalBeds-c.AvailableBeds) / float64(c.TotalBeds)
}

// NearCapacity reports whether occupancy exceeds 85%.
func (c *Capacity) NearCapacity() bool {
	return c.OccupancyRate() > nearCapacityThreshold
}

// AtCapacity reports whether occupancy exceeds 95%.
func (c *Capacity) AtCapacity() bool {
	return c.OccupancyRate() > atCapacityThreshold
}

// Fresh reports whether the snapshot is younger than the freshness window.
func (c *Capacity) Fresh(now time.Time) bool {
	return now.Sub(c.LastUpdated) < FreshnessWindow
}

// Validate checks the per-category bed invariant: 0 <= available <= total.
func (c *Capacity) Validate() error {
	categories := []struct {
		name             string
		available, total int
	}{
		{"beds", c.AvailableBeds, c.TotalBeds},
		{"icu", c.ICUAvailable, c.ICUBeds},
		{"emergency", c.EmergencyAvailable, c.EmergencyBeds},
	}
	for _, cat := range categories {
		if cat.available < 0 {
			return fmt.Errorf("%s: available count %d is negative", cat.name, cat.available)
		}
		if cat.available > cat.total {
			return fmt.Errorf("%s: available %d exceeds total %d", cat.name, cat.available, cat.total)
		}
	}
	return nil
}

// Clone returns a copy of the snapshot. Degraded-mode reads clone before
// rewriting provenance so the cached snapshot stays untouched.
func (c *Capacity) Clone() *Capacity {
	cp := *c
	return &cp
}

// Hospital is the static profile of a facility. It is immutable for the
// duration of a routing decision; live state lives in Capacity.
type Hospital struct {
	ID                   string   `db:"id" json:"id"`
	Name                 string   `db:"name" json:"name"`
	Address              string   `db:"address" json:"address"`
	Latitude             float64  `db:"latitude" json:"latitude"`
	Longitude            float64  `db:"longitude" json:"longitude"`
	Phone                string   `db:"phone" json:"phone,omitempty"`
	TraumaLevel          int      `db:"trauma_level" json:"trauma_level"`
	Specializations      []string `db:"specializations" json:"specializations,omitempty"`
	Certifications       []string `db:"certifications" json:"certifications,omitempty"`
	AvgWaitMinutes       float64  `db:"avg_wait_minutes" json:"avg_wait_minutes"`
	PatientSatisfaction  float64  `db:"patient_satisfaction" json:"patient_satisfaction"`
	TreatmentSuccessRate float64  `db:"treatment_success_rate" json:"treatment_success_rate"`
	MonthlyVolume        int      `db:"monthly_volume" json:"monthly_volume"`
}

// HasSpecialization reports whether the hospital carries the given tag.
func (h *Hospital) HasSpecialization(tag string) bool {
	for _, s := range h.Specializations {
		if s == tag {
			return true
		}
	}
	return false
}

// Candidate pairs a hospital profile with its current capacity snapshot for
// one routing decision.
type Candidate struct {
	Hospital *Hospital `json:"hospital"`
	Capacity *Capacity `json:"capacity,omitempty"`
}
