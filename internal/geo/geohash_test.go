package geo

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kilroy/pkg/utils"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name      string
		lat       float64
		lon       float64
		precision int
		want      string
	}{
		{name: "San Francisco", lat: 37.7749, lon: -122.4194, precision: 6, want: "9q8yyk"},
		{name: "New York", lat: 40.7128, lon: -74.0060, precision: 6, want: "dr5reg"},
		{name: "London", lat: 51.5074, lon: -0.1278, precision: 6, want: "gcpvj0"},
		{name: "Taiyuan", lat: 37.8324, lon: 112.5584, precision: 6, want: "ww8p1r"},
		{name: "Jutland", lat: 57.64911, lon: 10.40744, precision: 11, want: "u4pruydqqvj"},
		{name: "Northern Spain", lat: 42.6, lon: -5.6, precision: 5, want: "ezs42"},
		{name: "Default precision", lat: 37.7749, lon: -122.4194, precision: 0, want: "9q8yyk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.lat, tt.lon, tt.precision))
		})
	}
}

func TestEncode_DeterministicAndExactLength(t *testing.T) {
	points := [][2]float64{
		{37.7749, -122.4194},
		{-33.8688, 151.2093},
		{0, 0},
		{89.9999, 179.9999},
		{-90, -180},
	}
	for _, p := range points {
		for precision := 1; precision <= 14; precision++ {
			first := Encode(p[0], p[1], precision)
			second := Encode(p[0], p[1], precision)
			assert.Equal(t, first, second)
			assert.Len(t, first, precision)
		}
	}
}

func TestEncode_LongerPrecisionExtendsShorter(t *testing.T) {
	// The bisection is the same sequence of bits regardless of the requested
	// length, so truncating consistently yields prefixes.
	for p := 1; p < 12; p++ {
		short := Encode(35.6762, 139.6503, p)
		long := Encode(35.6762, 139.6503, p+1)
		assert.True(t, strings.HasPrefix(long, short), "precision %d: %s is not a prefix of %s", p, short, long)
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		hash      string
		wantLat   float64
		wantLon   float64
		tolerance float64
	}{
		{name: "San Francisco", hash: "9q8yyk", wantLat: 37.7749, wantLon: -122.4194, tolerance: 0.01},
		{name: "New York", hash: "dr5reg", wantLat: 40.7128, wantLon: -74.0060, tolerance: 0.01},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotLat, gotLon := Decode(tt.hash)
			assert.InDelta(t, tt.wantLat, gotLat, tt.tolerance)
			assert.InDelta(t, tt.wantLon, gotLon, tt.tolerance)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := [][2]float64{
		{37.7749, -122.4194},
		{40.7128, -74.0060},
		{51.5074, -0.1278},
		{-33.8688, 151.2093},
		{35.6762, 139.6503},
	}

	for _, tc := range testCases {
		hash := Encode(tc[0], tc[1], 8)
		lat, lon := Decode(hash)
		assert.InDelta(t, tc[0], lat, 0.001)
		assert.InDelta(t, tc[1], lon, 0.001)
	}
}

func TestNeighbors(t *testing.T) {
	tests := []struct {
		name string
		hash string
		want []string
	}{
		{name: "middle of alphabet", hash: "9q8yy", want: []string{"9q8yx", "9q8yz"}},
		{name: "first symbol has no predecessor", hash: "9q8y0", want: []string{"9q8y1"}},
		{name: "last symbol has no successor", hash: "9q8yz", want: []string{"9q8yy"}},
		{name: "skips excluded letters", hash: "dr5rej", want: []string{"dr5reh", "dr5rek"}},
		{name: "empty hash", hash: "", want: nil},
		{name: "symbol outside alphabet", hash: "9q8ya", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Neighbors(tt.hash))
		})
	}
}

// Lexical neighbors follow the Z-order curve, not the map. These tests pin the
// approximation down so a switch to true adjacency is a visible change.
func TestNeighbors_AreNotGeographicNeighbors(t *testing.T) {
	t.Run("lexical neighbor can be far away", func(t *testing.T) {
		require.Equal(t, []string{"6", "8"}, Neighbors("7"))
		_, lon7 := Decode("7")
		_, lon8 := Decode("8")
		assert.InDelta(t, 135.0, lon7-lon8, 1e-9)
	})

	t.Run("true neighbor across a high-order border is missed", func(t *testing.T) {
		west := Encode(0.001, -0.0001, DefaultPrecision)
		east := Encode(0.001, 0.0001, DefaultPrecision)
		require.Less(t, utils.DistanceMeters(0.001, -0.0001, 0.001, 0.0001), 25.0)

		assert.NotEqual(t, west[0], east[0])
		for _, n := range Neighbors(west) {
			assert.False(t, strings.HasPrefix(east, n[:1]), "neighbor %s unexpectedly shares top-level cell with %s", n, east)
		}
	})
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("9q8yyk"))
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("9q8yya"))
	assert.False(t, IsValid("9Q8YYK"))
}

func BenchmarkEncode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Encode(37.7749, -122.4194, 6)
	}
}

func BenchmarkDecode(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Decode("9q8yyk")
	}
}
