package hospital

import "math"

const (
	earthRadiusKm = 6371.0
	kmPerMile     = 1.60934
)

// DistanceKm returns the great-circle distance between two coordinates using
// the haversine formula.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := radians(lat2 - lat1)
	dLng := radians(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(radians(lat1))*math.Cos(radians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceMiles returns the great-circle distance in statute miles.
func DistanceMiles(lat1, lng1, lat2, lng2 float64) float64 {
	return DistanceKm(lat1, lng1, lat2, lng2) / kmPerMile
}

// MilesToKm converts statute miles to kilometres.
func MilesToKm(miles float64) float64 {
	return miles * kmPerMile
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
