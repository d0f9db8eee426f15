package geo

import (
	"errors"
	"math"
	"sort"
	"strconv"

	"kilroy/internal/domain/entities"
	"kilroy/pkg/utils"
)

// DefaultGridResolution is the cell edge in degrees, roughly 50 m of latitude.
// It is a fixed constant and ignores how longitude degrees shrink towards the
// poles.
const DefaultGridResolution = 0.0005

// ErrInvalidRadius is returned for a negative, infinite or NaN query radius.
var ErrInvalidRadius = errors.New("invalid radius")

// Cell identifies one grid bucket: floor(lat/ε), floor(lon/ε).
type Cell struct {
	Lat int
	Lon int
}

// String renders the cell as "<lat>_<lon>".
func (c Cell) String() string {
	return strconv.Itoa(c.Lat) + "_" + strconv.Itoa(c.Lon)
}

// Hit is one query result: an indexed item and its distance from the query
// center.
type Hit struct {
	Item           entities.IndexedItem
	DistanceMeters float64
}

type entry struct {
	item entities.IndexedItem
	cell Cell
	seq  uint64
}

// SpatialIndex buckets items into a fixed grid so a proximity query only has
// to look at the cells around the query point instead of every item.
//
// Two structures are kept in step:
//   - buckets: cell → set of ids (coarse spatial lookup)
//   - items:   id → entry (coordinate, timestamp, payload, owning cell)
//
// Every id in items appears in exactly one bucket, the one for its own
// coordinate. The index has no internal locking; it belongs to a single owner,
// and concurrent readers are served immutable snapshots (see Clone).
//
// Go Learning Note — Sets as map[K]struct{}:
// Go has no built-in set type. map[string]struct{} is the idiom: the empty
// struct occupies zero bytes, so the map stores only keys.
type SpatialIndex struct {
	resolution float64
	buckets    map[Cell]map[string]struct{}
	items      map[string]entry
	nextSeq    uint64
}

// NewSpatialIndex creates an empty index with the given cell edge in degrees.
// A non-positive resolution selects DefaultGridResolution.
func NewSpatialIndex(resolution float64) *SpatialIndex {
	if resolution <= 0 || math.IsNaN(resolution) || math.IsInf(resolution, 1) {
		resolution = DefaultGridResolution
	}
	return &SpatialIndex{
		resolution: resolution,
		buckets:    make(map[Cell]map[string]struct{}),
		items:      make(map[string]entry),
	}
}

// Resolution returns the cell edge in degrees.
func (s *SpatialIndex) Resolution() float64 {
	return s.resolution
}

// CellKey returns the grid cell that contains (lat, lon).
func (s *SpatialIndex) CellKey(lat, lon float64) Cell {
	return Cell{
		Lat: int(math.Floor(lat / s.resolution)),
		Lon: int(math.Floor(lon / s.resolution)),
	}
}

// Insert adds an item. If the id is already present, its old membership is
// removed first so no ghost entry is left in another bucket.
func (s *SpatialIndex) Insert(item entities.IndexedItem) error {
	if err := item.Coordinate.Validate(); err != nil {
		return err
	}
	if _, exists := s.items[item.ID]; exists {
		s.Remove(item.ID)
	}

	cell := s.CellKey(item.Coordinate.Latitude, item.Coordinate.Longitude)
	bucket, ok := s.buckets[cell]
	if !ok {
		bucket = make(map[string]struct{})
		s.buckets[cell] = bucket
	}
	bucket[item.ID] = struct{}{}

	s.nextSeq++
	s.items[item.ID] = entry{item: item, cell: cell, seq: s.nextSeq}
	return nil
}

// Remove deletes an item from its bucket and the side table. Removing an
// unknown id is a no-op.
func (s *SpatialIndex) Remove(id string) {
	e, ok := s.items[id]
	if !ok {
		return
	}
	if bucket, ok := s.buckets[e.cell]; ok {
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(s.buckets, e.cell) // Drop empty cells so the map does not grow without bound.
		}
	}
	delete(s.items, id)
}

// Clear empties the index.
func (s *SpatialIndex) Clear() {
	s.buckets = make(map[Cell]map[string]struct{})
	s.items = make(map[string]entry)
	s.nextSeq = 0
}

// Get returns the indexed item for id.
func (s *SpatialIndex) Get(id string) (entities.IndexedItem, bool) {
	e, ok := s.items[id]
	return e.item, ok
}

// Len returns the number of indexed items.
func (s *SpatialIndex) Len() int {
	return len(s.items)
}

// CellCount returns the number of non-empty buckets.
func (s *SpatialIndex) CellCount() int {
	return len(s.buckets)
}

// Clone returns a deep copy that can be mutated without affecting s.
func (s *SpatialIndex) Clone() *SpatialIndex {
	c := &SpatialIndex{
		resolution: s.resolution,
		buckets:    make(map[Cell]map[string]struct{}, len(s.buckets)),
		items:      make(map[string]entry, len(s.items)),
		nextSeq:    s.nextSeq,
	}
	for cell, bucket := range s.buckets {
		b := make(map[string]struct{}, len(bucket))
		for id := range bucket {
			b[id] = struct{}{}
		}
		c.buckets[cell] = b
	}
	for id, e := range s.items {
		c.items[id] = e
	}
	return c
}

// QueryRadius returns every item within radiusMeters of center, nearest
// first. Items at equal distance keep their insertion order.
//
// Strategy: coarse filter, then fine filter.
//  1. Coarse: convert the radius to degrees with the flat 111 km/degree
//     approximation, widen it to whole cells plus one, and union the buckets
//     of the (2·span+1)² cells around the center cell.
//  2. Fine: compute the great-circle distance to each candidate and keep
//     those within the radius.
//
// When the window holds more cells than the index has buckets, the
// existing buckets are scanned instead; the fine filter keeps the answer
// the same either way.
//
// A zero radius returns only items exactly at center.
func (s *SpatialIndex) QueryRadius(center entities.GeoPoint, radiusMeters float64) ([]Hit, error) {
	if radiusMeters < 0 || math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 1) {
		return nil, ErrInvalidRadius
	}
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if len(s.items) == 0 {
		return []Hit{}, nil
	}

	span := s.CellSpan(radiusMeters)
	origin := s.CellKey(center.Latitude, center.Longitude)

	var candidates []entry
	if width := 2*float64(span) + 1; width*width > float64(len(s.buckets)) {
		for cell, bucket := range s.buckets {
			if abs(cell.Lat-origin.Lat) > span || abs(cell.Lon-origin.Lon) > span {
				continue
			}
			for id := range bucket {
				candidates = append(candidates, s.items[id])
			}
		}
	} else {
		for dLat := -span; dLat <= span; dLat++ {
			for dLon := -span; dLon <= span; dLon++ {
				for id := range s.buckets[Cell{Lat: origin.Lat + dLat, Lon: origin.Lon + dLon}] {
					candidates = append(candidates, s.items[id])
				}
			}
		}
	}

	type scored struct {
		entry
		distance float64
	}
	var within []scored
	for _, e := range candidates {
		d := utils.DistanceMeters(center.Latitude, center.Longitude, e.item.Coordinate.Latitude, e.item.Coordinate.Longitude)
		if d <= radiusMeters {
			within = append(within, scored{entry: e, distance: d})
		}
	}

	// Candidates come out of map iteration in random order, so sort by
	// insertion sequence first and then stable-sort by distance.
	sort.Slice(within, func(i, j int) bool {
		return within[i].seq < within[j].seq
	})
	sort.SliceStable(within, func(i, j int) bool {
		return within[i].distance < within[j].distance
	})

	hits := make([]Hit, len(within))
	for i, w := range within {
		hits[i] = Hit{Item: w.item, DistanceMeters: w.distance}
	}
	return hits, nil
}

// CellSpan returns how many cells on each side of the center cell a query of
// the given radius must inspect: ceil(radiusDegrees/ε) + 1. The span is
// capped at the number of cells across 360 degrees, which already covers
// the whole grid.
func (s *SpatialIndex) CellSpan(radiusMeters float64) int {
	cells := math.Ceil(utils.MetersToDegrees(radiusMeters) / s.resolution)
	if limit := math.Ceil(360 / s.resolution); !(cells <= limit) {
		cells = limit
	}
	return int(cells) + 1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
