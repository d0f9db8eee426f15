// Package entities defines the core domain models for the Kilroy proximity
// backend: coordinates, indexed items, hydrated results, dropped pins and the
// backend Kilroy document. These structs have no dependencies on storage, HTTP
// or external services.
//
// Go Learning Note — "internal/" directory:
// Packages under internal/ cannot be imported by code outside this module. Go
// enforces this at the compiler level, so the domain model can change freely
// without breaking external callers.
package entities

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
)

// ErrInvalidCoordinate is returned when a latitude/longitude pair falls outside
// [-90, 90] / [-180, 180] or is not a number.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// GeoPoint is an immutable latitude/longitude pair in degrees.
//
// Go Learning Note — Value Types vs Reference Types:
// GeoPoint is 16 bytes and never mutated, so it is passed and returned by
// value everywhere. Larger or shared mutable structs (DroppedPin, Kilroy) are
// handled through pointers instead.
type GeoPoint struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"long"`
}

// NewGeoPoint creates a GeoPoint value from latitude and longitude.
func NewGeoPoint(lat, long float64) GeoPoint {
	return GeoPoint{
		Latitude:  lat,
		Longitude: long,
	}
}

// Validate reports ErrInvalidCoordinate for out-of-range or NaN components.
func (p GeoPoint) Validate() error {
	if math.IsNaN(p.Latitude) || math.IsNaN(p.Longitude) {
		return ErrInvalidCoordinate
	}
	if p.Latitude < -90 || p.Latitude > 90 || p.Longitude < -180 || p.Longitude > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

// Point converts to an orb.Point. orb stores coordinates in [lon, lat] order,
// the GeoJSON convention.
func (p GeoPoint) Point() orb.Point {
	return orb.Point{p.Longitude, p.Latitude}
}

// GeoPointFromOrb converts an orb.Point back to a GeoPoint.
func GeoPointFromOrb(pt orb.Point) GeoPoint {
	return GeoPoint{Latitude: pt.Lat(), Longitude: pt.Lon()}
}
