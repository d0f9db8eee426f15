package entities

import (
	"strings"
	"time"
)

// DroppedPin is a memory the user captured and dropped at a location. It is
// persisted locally first; SyncedAt is set once the matching Kilroy document
// has been written to the backend store.
type DroppedPin struct {
	ID           string     `json:"id"`
	Coordinate   GeoPoint   `json:"coordinate"`
	CapturedAt   time.Time  `json:"captured_at"`
	ImageRef     string     `json:"image_ref"`
	Comment      *string    `json:"comment,omitempty"`
	PlaceName    *string    `json:"place_name,omitempty"`
	PlaceAddress *string    `json:"place_address,omitempty"`
	SyncedAt     *time.Time `json:"synced_at,omitempty"`
}

// NewDroppedPin creates a pin captured now. Blank optional strings are stored
// as absent.
func NewDroppedPin(id string, coordinate GeoPoint, imageRef string, comment, placeName, placeAddress string) *DroppedPin {
	return &DroppedPin{
		ID:           id,
		Coordinate:   coordinate,
		CapturedAt:   time.Now().UTC(),
		ImageRef:     imageRef,
		Comment:      optional(comment),
		PlaceName:    optional(placeName),
		PlaceAddress: optional(placeAddress),
	}
}

// IsSynced reports whether the pin has reached the backend store.
func (p *DroppedPin) IsSynced() bool {
	return p.SyncedAt != nil
}

// MarkSynced records a successful backend write.
func (p *DroppedPin) MarkSynced(at time.Time) {
	t := at.UTC()
	p.SyncedAt = &t
}

// IndexedItem returns the pin as a SpatialIndex entry. The payload is the pin
// id; the pin source hydrates results from its own metadata cache.
func (p *DroppedPin) IndexedItem() IndexedItem {
	return IndexedItem{
		ID:         p.ID,
		Coordinate: p.Coordinate,
		Timestamp:  p.CapturedAt,
		PayloadRef: p.ID,
	}
}

// Deref returns the value of an optional string, or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
