// Package geo implements geohash encoding for backend range queries and the
// in-memory grid index used to answer "what is within R meters of here".
//
// Go Learning Note — What is a Geohash?
// A geohash encodes a latitude/longitude pair into a short string by
// repeatedly halving the longitude and latitude ranges. Points that share a
// prefix are close together, but close points do not always share a prefix:
// two points a meter apart on either side of a cell border can differ from
// the first character. That is why every geohash lookup here is only a
// candidate filter, always followed by an exact distance check.
//
// Precision determines the cell size:
//
//	1 → ~5000 km    4 → ~39 km     7 → ~153 m    10 → ~1.2 m
//	2 → ~1250 km    5 → ~5 km      8 → ~19 m     11 → ~15 cm
//	3 → ~156 km     6 → ~1.2 km    9 → ~2.4 m    12 → ~1.9 cm
//
// Kilroy documents are stored with precision 6.
package geo

import (
	"strings"
)

// DefaultPrecision is the geohash length used for stored documents and for
// planning range queries.
const DefaultPrecision = 6

// base32 is the geohash character set. 'a', 'i', 'l' and 'o' are excluded to
// avoid confusion with digits.
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

var base32Map = map[byte]int{}

// Go Learning Note — init() Functions:
// init runs once when the package is first imported. Building a small
// read-only lookup table is a typical use; anything that can fail or needs
// configuration belongs in a constructor instead.
func init() {
	for i := 0; i < len(base32); i++ {
		base32Map[base32[i]] = i
	}
}

// Encode converts latitude and longitude to a geohash string of exactly
// precision characters. A precision of zero or less selects DefaultPrecision.
//
// Algorithm (binary interleaving):
//  1. Start with the full range: lat [-90, 90], lon [-180, 180]
//  2. Alternate between longitude (even bits) and latitude (odd bits)
//  3. For each step, bisect the range and set bit=1 if value >= midpoint
//  4. Every 5 bits are encoded as one base32 character
//
// Coordinates are not range-checked; callers validate upstream.
//
// Go Learning Note — strings.Builder:
// strings.Builder accumulates bytes in a growable buffer and hands back the
// final string without an extra copy. Repeated s += "x" would allocate a new
// string on every iteration because Go strings are immutable.
func Encode(lat, lon float64, precision int) string {
	if precision <= 0 {
		precision = DefaultPrecision
	}

	minLat, maxLat := -90.0, 90.0
	minLon, maxLon := -180.0, 180.0

	var hash strings.Builder
	hash.Grow(precision)
	isEven := true
	bit := 0
	ch := 0

	for hash.Len() < precision {
		if isEven {
			mid := (minLon + maxLon) / 2
			if lon >= mid {
				ch |= 1 << (4 - bit)
				minLon = mid
			} else {
				maxLon = mid
			}
		} else {
			mid := (minLat + maxLat) / 2
			if lat >= mid {
				ch |= 1 << (4 - bit)
				minLat = mid
			} else {
				maxLat = mid
			}
		}
		isEven = !isEven
		bit++
		if bit == 5 {
			hash.WriteByte(base32[ch])
			bit = 0
			ch = 0
		}
	}

	return hash.String()
}

// Decode converts a geohash string back to the center of the encoded cell.
// Characters outside the alphabet are ignored.
func Decode(hash string) (lat, lon float64) {
	minLat, maxLat := -90.0, 90.0
	minLon, maxLon := -180.0, 180.0
	isEven := true

	for i := 0; i < len(hash); i++ {
		cd, ok := base32Map[hash[i]]
		if !ok {
			continue
		}
		for j := 4; j >= 0; j-- {
			bit := (cd >> j) & 1
			if isEven {
				mid := (minLon + maxLon) / 2
				if bit == 1 {
					minLon = mid
				} else {
					maxLon = mid
				}
			} else {
				mid := (minLat + maxLat) / 2
				if bit == 1 {
					minLat = mid
				} else {
					maxLat = mid
				}
			}
			isEven = !isEven
		}
	}

	lat = (minLat + maxLat) / 2
	lon = (minLon + maxLon) / 2
	return
}

// Neighbors returns the lexical neighbors of hash: the same prefix with the
// final symbol stepped one position down and one position up the alphabet.
// There is no wrap-around, so a hash ending in '0' or 'z' has one neighbor.
//
// These are NOT the geographically adjacent cells. A lexical step moves along
// the Z-order curve, which may jump to a distant cell or skip a true neighbor
// that lives under a different prefix. Remote queries rely on exactly this
// set, so changing it changes which documents are found.
func Neighbors(hash string) []string {
	if len(hash) == 0 {
		return nil
	}

	last := hash[len(hash)-1]
	idx, ok := base32Map[last]
	if !ok {
		return nil
	}
	prefix := hash[:len(hash)-1]

	var out []string
	if idx > 0 {
		out = append(out, prefix+string(base32[idx-1]))
	}
	if idx < len(base32)-1 {
		out = append(out, prefix+string(base32[idx+1]))
	}
	return out
}

// IsValid reports whether every character of hash is in the geohash alphabet.
func IsValid(hash string) bool {
	if hash == "" {
		return false
	}
	for i := 0; i < len(hash); i++ {
		if _, ok := base32Map[hash[i]]; !ok {
			return false
		}
	}
	return true
}
