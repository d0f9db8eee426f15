package entities

import "time"

// ZoneTransition names an edge of the proximity zone state machine.
type ZoneTransition string

const (
	ZoneEntered ZoneTransition = "entered"
	ZoneLeft    ZoneTransition = "left"
)

// ZoneEvent is emitted when the user walks into an area with memories, or
// out of one.
type ZoneEvent struct {
	Transition ZoneTransition     `json:"transition"`
	Location   GeoPoint           `json:"location"`
	Total      int                `json:"total"`
	Counts     map[SourceKind]int `json:"counts"`
	At         time.Time          `json:"at"`
}

// PinAction names a dropped-pin lifecycle step.
type PinAction string

const (
	PinDropped PinAction = "dropped"
	PinSynced  PinAction = "synced"
	PinDeleted PinAction = "deleted"
)

// PinEvent is emitted for every dropped-pin lifecycle step.
type PinEvent struct {
	Action   PinAction `json:"action"`
	PinID    string    `json:"pin_id"`
	Location GeoPoint  `json:"location"`
	Geohash  string    `json:"geohash,omitempty"`
	At       time.Time `json:"at"`
}
