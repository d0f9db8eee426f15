package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"kilroy/internal/domain/entities"
	"kilroy/internal/geo"
	"kilroy/internal/repository"
	"kilroy/pkg/utils"
)

// RangeSentinel is appended to a geohash to form the exclusive upper bound of
// its prefix range. '~' sorts after every geohash symbol.
const RangeSentinel = "~"

// SortOrder selects how planner results are ordered.
type SortOrder string

const (
	// SortCreatedDesc lists the latest documents first. This is the default.
	SortCreatedDesc SortOrder = "latest"
	// SortDistanceAsc lists the nearest documents first.
	SortDistanceAsc SortOrder = "distance"
)

// ErrInvalidSortOrder is returned for an unrecognised order name.
var ErrInvalidSortOrder = errors.New("invalid sort order")

// ParseSortOrder maps a query-string value to a SortOrder. The empty string
// selects SortCreatedDesc.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(s))) {
	case "", SortCreatedDesc:
		return SortCreatedDesc, nil
	case SortDistanceAsc:
		return SortDistanceAsc, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSortOrder, s)
}

// KilroyHit is a backend document with its distance from the query center.
type KilroyHit struct {
	*entities.Kilroy
	DistanceMeters float64 `json:"distance_meters"`
}

// RemoteQueryPlanner turns a location into a handful of geohash prefix range
// queries against the backend store.
//
// The planned prefixes are the center cell's geohash plus its lexical
// neighbors, not its geographic ones, so a document just across a cell
// border can be missed. Every candidate is checked with the exact distance,
// so nothing outside the radius is ever returned.
type RemoteQueryPlanner struct {
	store     repository.KilroyStore
	precision int
}

// NewRemoteQueryPlanner creates a planner. A non-positive precision selects
// geo.DefaultPrecision.
func NewRemoteQueryPlanner(store repository.KilroyStore, precision int) *RemoteQueryPlanner {
	if precision <= 0 {
		precision = geo.DefaultPrecision
	}
	return &RemoteQueryPlanner{store: store, precision: precision}
}

// PlanHashes returns the geohash prefixes queried for location: the center
// hash first, then its lexical neighbors.
func (p *RemoteQueryPlanner) PlanHashes(location entities.GeoPoint) []string {
	center := geo.Encode(location.Latitude, location.Longitude, p.precision)
	return append([]string{center}, geo.Neighbors(center)...)
}

// PlanAndExecute runs one range query per planned prefix concurrently, merges
// the results by document id, drops malformed documents and anything farther
// than radiusMeters, and sorts by order. If any range query fails the whole
// call fails; partial results are never returned.
func (p *RemoteQueryPlanner) PlanAndExecute(ctx context.Context, location entities.GeoPoint, radiusMeters float64, order SortOrder) ([]KilroyHit, error) {
	if err := location.Validate(); err != nil {
		return nil, err
	}
	if radiusMeters < 0 || math.IsNaN(radiusMeters) || math.IsInf(radiusMeters, 1) {
		return nil, geo.ErrInvalidRadius
	}
	if order == "" {
		order = SortCreatedDesc
	}

	hashes := p.PlanHashes(location)
	batches := make([][]*entities.Kilroy, len(hashes))

	// Go Learning Note — errgroup:
	// errgroup.WithContext cancels the shared context as soon as one goroutine
	// returns an error, and Wait returns that first error. It is the standard
	// "run these in parallel, fail fast" building block.
	g, gctx := errgroup.WithContext(ctx)
	for i, h := range hashes {
		i, h := i, h
		g.Go(func() error {
			docs, err := p.store.RangeQuery(gctx, h, h+RangeSentinel)
			if err != nil {
				return fmt.Errorf("range query %s: %w", h, err)
			}
			batches[i] = docs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		log.Printf("[PLANNER] Query around (%.5f, %.5f) failed: %v", location.Latitude, location.Longitude, err)
		return nil, err
	}

	seen := make(map[string]struct{})
	var hits []KilroyHit
	skipped := 0
	for _, batch := range batches {
		for _, doc := range batch {
			if !doc.Valid() {
				skipped++
				continue
			}
			if _, dup := seen[doc.ID]; dup {
				continue
			}
			seen[doc.ID] = struct{}{}

			d := utils.DistanceMeters(location.Latitude, location.Longitude, doc.Latitude, doc.Longitude)
			if d <= radiusMeters {
				hits = append(hits, KilroyHit{Kilroy: doc, DistanceMeters: d})
			}
		}
	}
	if skipped > 0 {
		log.Printf("[PLANNER] Skipped %d malformed documents", skipped)
	}

	sortHits(hits, order)
	return hits, nil
}

func sortHits(hits []KilroyHit, order SortOrder) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if order == SortDistanceAsc {
			if a.DistanceMeters != b.DistanceMeters {
				return a.DistanceMeters < b.DistanceMeters
			}
			return a.ID < b.ID
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}
