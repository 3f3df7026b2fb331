package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// SemicirclesToDegrees converts a Garmin semicircle angle to decimal degrees.
// ±2^31 semicircles map to ±180°.
func SemicirclesToDegrees(semicircles int32) float64 {
	return float64(semicircles) * (180.0 / math.Exp2(31))
}

// DistanceKm is the great-circle distance between two fixes. It feeds
// Track.LengthKm, which the GeoJSON export reports as length_km.
func DistanceKm(a, b GeoPoint) float64 {
	return orbgeo.DistanceHaversine(
		orb.Point{a.Longitude, a.Latitude},
		orb.Point{b.Longitude, b.Latitude},
	) / 1000
}
