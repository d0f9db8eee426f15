package entities

import "time"

// SourceKind names one independent origin of geo-tagged items.
//
// Go Learning Note — Typed String Enums:
// Go has no enum keyword. A named string type plus a block of constants gives
// compile-time typing while still serializing to readable JSON.
type SourceKind string

const (
	SourceLibrary     SourceKind = "library"
	SourceCloudPhotos SourceKind = "cloud_photos"
	SourceDroppedPins SourceKind = "dropped_pins"
)

// AllSourceKinds lists the sources in the order results are reported.
var AllSourceKinds = []SourceKind{SourceLibrary, SourceCloudPhotos, SourceDroppedPins}

// IsValid reports whether k is one of the known source kinds.
func (k SourceKind) IsValid() bool {
	for _, known := range AllSourceKinds {
		if k == known {
			return true
		}
	}
	return false
}

// IndexedItem is what a SpatialIndex stores for every id: where the item is,
// when it was taken, and an opaque reference the owning source uses to
// materialize a full result. Items are never mutated after creation.
type IndexedItem struct {
	ID         string
	Coordinate GeoPoint
	Timestamp  time.Time
	PayloadRef any
}

// ResultItem is a hydrated proximity result, tagged with the source that
// produced it. Optional fields are only set by the sources that have them.
type ResultItem struct {
	Source         SourceKind `json:"source"`
	ID             string     `json:"id"`
	Coordinate     GeoPoint   `json:"coordinate"`
	Timestamp      time.Time  `json:"timestamp"`
	DistanceMeters float64    `json:"distance_meters"`
	ImageRef       string     `json:"image_ref,omitempty"`
	ThumbnailURL   string     `json:"thumbnail_url,omitempty"`
	Width          int        `json:"width,omitempty"`
	Height         int        `json:"height,omitempty"`
	Comment        string     `json:"comment,omitempty"`
	PlaceName      string     `json:"place_name,omitempty"`
	PlaceAddress   string     `json:"place_address,omitempty"`
}

// YearsAgo returns how many whole years have passed between the item's
// timestamp and now.
func (r ResultItem) YearsAgo(now time.Time) int {
	years := now.Year() - r.Timestamp.Year()
	if now.YearDay() < r.Timestamp.YearDay() {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
