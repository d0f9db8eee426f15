// Package utils provides shared helpers used across the application.
//
// Go Learning Note — "pkg/" Directory Convention:
// Code under pkg/ is intended to be importable by other projects (unlike
// internal/ which is compiler-enforced private). This is a community
// convention, not a Go language feature.
package utils

import (
	"github.com/google/uuid"
)

// GenerateID creates a new UUID v4 string for use as a pin or document id.
//
// Go Learning Note — "github.com/google/uuid":
// uuid.New() creates a random (v4) UUID like
// "550e8400-e29b-41d4-a716-446655440000". UUIDs can be generated on any device
// without coordination, which is what lets a pin get its id before it has ever
// reached the backend.
func GenerateID() string {
	return uuid.New().String()
}

// IsValidID reports whether s parses as a UUID.
func IsValidID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
