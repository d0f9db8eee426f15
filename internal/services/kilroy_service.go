package services

import (
	"context"
	"fmt"
	"log"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"kilroy/internal/domain/entities"
	"kilroy/internal/geo"
	"kilroy/internal/repository"
)

// DefaultLatestLimit is how many documents Latest returns when no limit is
// given.
const DefaultLatestLimit = 100

// NearbyCacheSize bounds how many distinct nearby queries keep a stale
// fallback. The least recently used query is evicted first.
const NearbyCacheSize = 256

// NearbyKilroys is one answer from KilroyService.Nearby. Stale is set when
// the backend query failed and Hits is the last good answer for the same
// query.
type NearbyKilroys struct {
	Hits      []KilroyHit `json:"hits"`
	FetchedAt time.Time   `json:"fetched_at"`
	Stale     bool        `json:"stale"`
}

// KilroyService serves backend documents to the API. It wraps the planner
// and remembers the last successful answer per query, so a failed refresh
// hands back the previous list alongside the error instead of an empty one.
type KilroyService struct {
	planner *RemoteQueryPlanner
	store   repository.KilroyStore
	now     func() time.Time
	cache   *lru.Cache[string, NearbyKilroys]
}

func NewKilroyService(planner *RemoteQueryPlanner, store repository.KilroyStore) *KilroyService {
	// New only fails for a non-positive size.
	cache, _ := lru.New[string, NearbyKilroys](NearbyCacheSize)
	return &KilroyService{
		planner: planner,
		store:   store,
		now:     time.Now,
		cache:   cache,
	}
}

// Nearby runs the planner around location. On failure the error is returned
// together with the last good result for the same cell, radius and order,
// if there is one.
func (s *KilroyService) Nearby(ctx context.Context, location entities.GeoPoint, radiusMeters float64, order SortOrder) (NearbyKilroys, error) {
	if order == "" {
		order = SortCreatedDesc
	}
	hits, err := s.planner.PlanAndExecute(ctx, location, radiusMeters, order)
	if err != nil {
		if err := location.Validate(); err != nil {
			return NearbyKilroys{}, err
		}
		if prev, ok := s.cache.Get(queryKey(location, radiusMeters, order)); ok {
			log.Printf("[PLANNER] Serving stale result from %s: %v", prev.FetchedAt.Format(time.RFC3339), err)
			prev.Stale = true
			return prev, err
		}
		return NearbyKilroys{Hits: []KilroyHit{}}, err
	}

	if hits == nil {
		hits = []KilroyHit{}
	}
	res := NearbyKilroys{Hits: hits, FetchedAt: s.now().UTC()}
	s.cache.Add(queryKey(location, radiusMeters, order), res)
	return res, nil
}

// Latest returns the newest backend documents. Malformed documents are
// dropped. A non-positive limit selects DefaultLatestLimit.
func (s *KilroyService) Latest(ctx context.Context, limit int) ([]*entities.Kilroy, error) {
	if limit <= 0 {
		limit = DefaultLatestLimit
	}
	docs, err := s.store.Latest(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("latest kilroys: %w", err)
	}
	out := make([]*entities.Kilroy, 0, len(docs))
	for _, d := range docs {
		if d.Valid() {
			out = append(out, d)
		}
	}
	return out, nil
}

// queryKey buckets a query by its full-precision geohash so small GPS jitter
// maps to the same cached answer.
func queryKey(location entities.GeoPoint, radiusMeters float64, order SortOrder) string {
	return fmt.Sprintf("%s|%g|%s", geo.Encode(location.Latitude, location.Longitude, geo.DefaultPrecision), radiusMeters, order)
}
