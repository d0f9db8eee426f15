package entities

import (
	"time"
)

// Kilroy is the backend document written for every synced or seeded memory.
// Field names are part of the wire contract with existing clients and must
// not change. The id is the document id, so it is not stored as a field.
type Kilroy struct {
	ID           string    `json:"id" firestore:"-"`
	ImageURL     string    `json:"imageURL" firestore:"imageURL"`
	Latitude     float64   `json:"latitude" firestore:"latitude"`
	Longitude    float64   `json:"longitude" firestore:"longitude"`
	Geohash      string    `json:"geohash" firestore:"geohash"`
	PlaceName    string    `json:"placeName" firestore:"placeName"`
	PlaceAddress *string   `json:"placeAddress,omitempty" firestore:"placeAddress,omitempty"`
	Comment      *string   `json:"comment,omitempty" firestore:"comment,omitempty"`
	CreatedAt    time.Time `json:"createdAt" firestore:"createdAt"`
	DeviceID     string    `json:"deviceId" firestore:"deviceId"`
	IsSeeded     bool      `json:"isSeeded,omitempty" firestore:"isSeeded,omitempty"`
}

// Coordinate returns the document's location.
func (k *Kilroy) Coordinate() GeoPoint {
	return GeoPoint{Latitude: k.Latitude, Longitude: k.Longitude}
}

// RequiredFields are the stored keys every document must carry. Their string
// values may be empty; older clients wrote empty place names and image URLs.
var RequiredFields = []string{"imageURL", "latitude", "longitude", "geohash", "placeName", "createdAt", "deviceId"}

// Valid reports whether the document can be shown: it has an id, a creation
// time and an on-map coordinate. Malformed documents are filtered out of
// query results rather than failing the query.
func (k *Kilroy) Valid() bool {
	if k == nil || k.ID == "" || k.CreatedAt.IsZero() {
		return false
	}
	return k.Coordinate().Validate() == nil
}
