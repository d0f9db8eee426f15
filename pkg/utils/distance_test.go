package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceMeters(t *testing.T) {
	tests := []struct {
		name      string
		lat1      float64
		lon1      float64
		lat2      float64
		lon2      float64
		expected  float64
		tolerance float64
	}{
		{
			name:      "Same location",
			lat1:      37.7749,
			lon1:      -122.4194,
			lat2:      37.7749,
			lon2:      -122.4194,
			expected:  0,
			tolerance: 0.001,
		},
		{
			name:      "Three ten-thousandths of a degree on the equator",
			lat1:      0,
			lon1:      0,
			lat2:      0,
			lon2:      0.0003,
			expected:  33.4,
			tolerance: 0.5,
		},
		{
			name:      "SF to Oakland",
			lat1:      37.7749,
			lon1:      -122.4194,
			lat2:      37.8044,
			lon2:      -122.2712,
			expected:  13_500,
			tolerance: 1_000,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DistanceMeters(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			assert.InDelta(t, tt.expected, got, tt.tolerance)
		})
	}
}

func TestDistanceMeters_Symmetric(t *testing.T) {
	a := DistanceMeters(51.5074, -0.1278, 48.8566, 2.3522)
	b := DistanceMeters(48.8566, 2.3522, 51.5074, -0.1278)
	assert.True(t, math.Abs(a-b) < 1e-6)
}

func TestMetersToDegrees(t *testing.T) {
	assert.InDelta(t, 0.00045045, MetersToDegrees(50), 1e-8)
}

func TestGenerateID(t *testing.T) {
	id := GenerateID()
	assert.True(t, IsValidID(id))
	assert.NotEqual(t, id, GenerateID())
	assert.False(t, IsValidID("not-a-uuid"))
}

func BenchmarkDistanceMeters(b *testing.B) {
	for i := 0; i < b.N; i++ {
		DistanceMeters(37.7749, -122.4194, 37.8044, -122.2712)
	}
}
