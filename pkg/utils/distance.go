package utils

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// MetersPerDegree is the flat-earth conversion used to size search windows.
// It deliberately ignores the shrinking length of a longitude degree away
// from the equator.
const MetersPerDegree = 111_000.0

// DistanceMeters returns the great-circle distance between two points in
// meters using the haversine formula.
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	return geo.DistanceHaversine(orb.Point{lon1, lat1}, orb.Point{lon2, lat2})
}

// MetersToDegrees converts a distance to degrees of latitude.
func MetersToDegrees(meters float64) float64 {
	return meters / MetersPerDegree
}
