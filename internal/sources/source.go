// Package sources implements the three memory sources the proximity
// aggregator queries: the on-device photo library, the cloud photo library
// and the user's dropped pins. Each source owns a SpatialIndex built from its
// origin and answers radius queries from that index alone.
//
// Go Learning Note — atomic.Pointer for snapshots:
// A rebuild never mutates the index readers are using. It fills a fresh
// snapshot and publishes it with a single atomic pointer store. Readers load
// the pointer once per query and keep working on whatever snapshot they got,
// so queries never block on a rebuild and never see a half-built index.
package sources

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"kilroy/internal/domain/entities"
	"kilroy/internal/geo"
)

// ErrUnknownSource is returned when a caller names a source kind that is not
// registered.
var ErrUnknownSource = errors.New("unknown source")

// Source is the common shape of every memory source.
type Source interface {
	Kind() entities.SourceKind
	// BuildIndex reloads the source's origin. On failure or cancellation the
	// previous index stays in use.
	BuildIndex(ctx context.Context) error
	// FindNearby answers from the current index only.
	FindNearby(ctx context.Context, center entities.GeoPoint, radiusMeters float64) ([]entities.ResultItem, error)
	Count() int
	Status() Status
}

// Status describes a source's current index.
type Status struct {
	Kind      entities.SourceKind `json:"source"`
	Count     int                 `json:"count"`
	BuiltAt   time.Time           `json:"built_at,omitempty"`
	Skipped   int                 `json:"skipped"`
	LastError string              `json:"last_error,omitempty"`
}

type snapshot[T any] struct {
	index   *geo.SpatialIndex
	meta    map[string]T
	builtAt time.Time
	skipped int
}

func newSnapshot[T any](resolution float64) *snapshot[T] {
	return &snapshot[T]{
		index: geo.NewSpatialIndex(resolution),
		meta:  make(map[string]T),
	}
}

func (s *snapshot[T]) clone() *snapshot[T] {
	meta := make(map[string]T, len(s.meta))
	for id, m := range s.meta {
		meta[id] = m
	}
	return &snapshot[T]{
		index:   s.index.Clone(),
		meta:    meta,
		builtAt: s.builtAt,
		skipped: s.skipped,
	}
}

// builder collects items during a rebuild.
type builder[T any] struct {
	snap *snapshot[T]
}

// add indexes one item with its metadata. Items with invalid coordinates are
// counted as skipped rather than failing the build.
func (b *builder[T]) add(item entities.IndexedItem, meta T) {
	if err := b.snap.index.Insert(item); err != nil {
		b.snap.skipped++
		return
	}
	b.snap.meta[item.ID] = meta
}

func (b *builder[T]) skip() {
	b.snap.skipped++
}

func (b *builder[T]) count() int {
	return b.snap.index.Len()
}

type loadFunc[T any] func(ctx context.Context, b *builder[T]) error

type hydrateFunc[T any] func(hit geo.Hit, meta T) entities.ResultItem

// indexedSource is the machinery shared by every variant: build into a fresh
// snapshot, swap on success, answer queries from the current snapshot.
type indexedSource[T any] struct {
	kind       entities.SourceKind
	resolution float64
	load       loadFunc[T]
	hydrate    hydrateFunc[T]

	mu      sync.Mutex // serializes builds and incremental updates
	current atomic.Pointer[snapshot[T]]
	lastErr atomic.Pointer[string]
}

func newIndexedSource[T any](kind entities.SourceKind, resolution float64, load loadFunc[T], hydrate hydrateFunc[T]) *indexedSource[T] {
	s := &indexedSource[T]{
		kind:       kind,
		resolution: resolution,
		load:       load,
		hydrate:    hydrate,
	}
	s.current.Store(newSnapshot[T](resolution))
	return s
}

func (s *indexedSource[T]) Kind() entities.SourceKind {
	return s.kind
}

func (s *indexedSource[T]) BuildIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	b := &builder[T]{snap: newSnapshot[T](s.resolution)}

	err := s.load(ctx, b)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		msg := err.Error()
		s.lastErr.Store(&msg)
		log.Printf("[SOURCE] %s rebuild failed after %d items, keeping previous index of %d: %v",
			s.kind, b.count(), s.current.Load().index.Len(), err)
		return fmt.Errorf("%s: %w", s.kind, err)
	}

	b.snap.builtAt = time.Now().UTC()
	s.current.Store(b.snap)
	s.lastErr.Store(nil)
	log.Printf("[SOURCE] %s indexed %d items (%d skipped) in %v", s.kind, b.count(), b.snap.skipped, time.Since(start))
	return nil
}

func (s *indexedSource[T]) FindNearby(ctx context.Context, center entities.GeoPoint, radiusMeters float64) ([]entities.ResultItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := s.current.Load()
	hits, err := snap.index.QueryRadius(center, radiusMeters)
	if err != nil {
		return nil, err
	}

	results := make([]entities.ResultItem, 0, len(hits))
	for _, h := range hits {
		meta, ok := snap.meta[h.Item.ID]
		if !ok {
			continue
		}
		results = append(results, s.hydrate(h, meta))
	}
	return results, nil
}

// Count returns the number of items in the current index.
func (s *indexedSource[T]) Count() int {
	return s.current.Load().index.Len()
}

func (s *indexedSource[T]) Status() Status {
	snap := s.current.Load()
	st := Status{
		Kind:    s.kind,
		Count:   snap.index.Len(),
		BuiltAt: snap.builtAt,
		Skipped: snap.skipped,
	}
	if msg := s.lastErr.Load(); msg != nil {
		st.LastError = *msg
	}
	return st
}

// update applies fn to a copy of the current snapshot and publishes the copy.
func (s *indexedSource[T]) update(fn func(snap *snapshot[T]) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().clone()
	if err := fn(next); err != nil {
		return err
	}
	s.current.Store(next)
	return nil
}

// baseResult fills the fields every variant shares.
func baseResult(kind entities.SourceKind, hit geo.Hit) entities.ResultItem {
	return entities.ResultItem{
		Source:         kind,
		ID:             hit.Item.ID,
		Coordinate:     hit.Item.Coordinate,
		Timestamp:      hit.Item.Timestamp,
		DistanceMeters: hit.DistanceMeters,
	}
}
