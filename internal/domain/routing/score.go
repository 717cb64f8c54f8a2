// Package routing selects the best-matched hospital for a patient. Scoring
// is pure and deterministic; the service around it handles candidate
// retrieval, fallbacks, and ranking.
package routing

import (
	"github.com/ehr/capacity-router/internal/domain/hospital"
)

// Scoring weights. The formula is additive over a base of 100, so a score
// can go negative for a distant, saturated hospital.
const (
	baseScore = 100.0

	distancePenaltyPerMile = 2.0

	manyBedsBonus     = 20.0 // available beds > 10
	someBedsBonus     = 10.0 // available beds > 5
	noBedsPenalty     = 50.0 // available beds == 0
	manyBedsThreshold = 10
	someBedsThreshold = 5

	criticalSeverity       = 8.0
	traumaBonusPerLevel    = 10.0
	successRateWeight      = 20.0
	waitPenaltyPerMinute   = 0.1
	highOccupancyPenalty   = 30.0 // occupancy > 0.9
	raisedOccupancyPenalty = 15.0 // occupancy > 0.8
)

// Score computes the ranking score for one candidate hospital given the
// patient position and severity. Higher is better. The function is pure:
// identical inputs always produce identical output.
//
// TODO: confirm with clinical product whether the trauma bonus should be
// inverted. Trauma level 1 is the most capable designation, yet the bonus
// grows with the numeric level; the current behavior is kept for
// compatibility with the deployed formula.
func Score(h *hospital.Hospital, c *hospital.Capacity, patientLat, patientLng, severity float64) float64 {
	score := baseScore

	score -= distancePenaltyPerMile * hospital.DistanceMiles(patientLat, patientLng, h.Latitude, h.Longitude)

	if c != nil {
		switch {
		case c.AvailableBeds > manyBedsThreshold:
			score += manyBedsBonus
		case c.AvailableBeds > someBedsThreshold:
			score += someBedsBonus
		case c.AvailableBeds == 0:
			score -= noBedsPenalty
		}
	}

	if severity >= criticalSeverity {
		score += float64(h.TraumaLevel) * traumaBonusPerLevel
	}

	score += h.TreatmentSuccessRate * successRateWeight
	score -= h.AvgWaitMinutes * waitPenaltyPerMinute

	if c != nil {
		switch occ := c.OccupancyRate(); {
		case occ > 0.9:
			score -= highOccupancyPenalty
		case occ > 0.8:
			score -= raisedOccupancyPenalty
		}
	}

	return score
}
