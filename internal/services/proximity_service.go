package services

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"kilroy/internal/domain/entities"
	"kilroy/internal/sources"
	"kilroy/pkg/utils"
)

const (
	// DefaultMinMovementMeters is how far the user must move before a refresh
	// re-queries the sources.
	DefaultMinMovementMeters = 10.0
	// DefaultZoneRadiusMeters is the radius of the "memories nearby" zone.
	DefaultZoneRadiusMeters = 50.0
)

// RefreshStatus reports what a Refresh call actually did.
type RefreshStatus string

const (
	RefreshEvaluated RefreshStatus = "evaluated"
	RefreshDebounced RefreshStatus = "debounced"
	RefreshDropped   RefreshStatus = "dropped"
)

// ZoneState is the aggregator's position relative to a memory zone.
type ZoneState string

const (
	ZoneOutside ZoneState = "outside"
	ZoneInside  ZoneState = "inside"
)

// SourceResult is one source's answer: its items, or the error that
// prevented them.
type SourceResult struct {
	Source entities.SourceKind   `json:"source"`
	Items  []entities.ResultItem `json:"items"`
	Error  string                `json:"error,omitempty"`
}

// ProximityResult is the stored outcome of the last evaluated refresh.
type ProximityResult struct {
	Status      RefreshStatus           `json:"status"`
	Location    *entities.GeoPoint      `json:"location,omitempty"`
	EvaluatedAt time.Time               `json:"evaluated_at,omitempty"`
	Sources     []SourceResult          `json:"sources"`
	Total       int                     `json:"total"`
	Zone        ZoneState               `json:"zone"`
	Reveal      bool                    `json:"reveal"`
	Transition  entities.ZoneTransition `json:"transition,omitempty"`
}

// ProximityConfig holds the aggregator's fixed thresholds.
type ProximityConfig struct {
	MinMovementMeters float64
	ZoneRadiusMeters  float64
}

// ProximityAggregator queries every memory source around the user's location
// and runs the Outside/Inside zone state machine.
//
// Zone transitions are edge-triggered:
//   - Outside → Inside when the aggregate count goes from 0 to > 0. The
//     notifier fires once and the reveal flag is set.
//   - Inside → Outside when the count returns to 0. The reveal flag is
//     cleared so the next entry notifies again.
//   - Inside → Inside does nothing, however the count changes.
//
// Only one Refresh runs at a time. A call that arrives while another is in
// flight is dropped, not queued.
//
// Go Learning Note — atomic.Bool as a single-flight guard:
// CompareAndSwap(false, true) succeeds for exactly one caller. Everyone else
// sees false and returns immediately, so no goroutine ever blocks waiting for
// the in-flight refresh.
type ProximityAggregator struct {
	sources  []sources.Source
	notifier Notifier
	config   ProximityConfig
	now      func() time.Time

	inFlight atomic.Bool

	mu           sync.RWMutex
	lastLocation *entities.GeoPoint
	zone         ZoneState
	reveal       bool
	last         ProximityResult
}

// NewProximityAggregator wires the aggregator to its sources and notifier.
// Zero thresholds fall back to the defaults.
func NewProximityAggregator(srcs []sources.Source, notifier Notifier, config ProximityConfig) *ProximityAggregator {
	if config.MinMovementMeters <= 0 {
		config.MinMovementMeters = DefaultMinMovementMeters
	}
	if config.ZoneRadiusMeters <= 0 {
		config.ZoneRadiusMeters = DefaultZoneRadiusMeters
	}
	if notifier == nil {
		notifier = NewNotificationService()
	}
	return &ProximityAggregator{
		sources:  srcs,
		notifier: notifier,
		config:   config,
		now:      time.Now,
		zone:     ZoneOutside,
		last:     ProximityResult{Zone: ZoneOutside, Sources: []SourceResult{}},
	}
}

// Refresh evaluates location unless it is within MinMovementMeters of the
// last evaluated location and force is false. The returned result is always
// the aggregator's current view; its Status says whether this call
// evaluated, was debounced, or was dropped because another refresh was
// running.
func (a *ProximityAggregator) Refresh(ctx context.Context, location entities.GeoPoint, force bool) (ProximityResult, error) {
	if err := location.Validate(); err != nil {
		return ProximityResult{}, err
	}

	if !a.inFlight.CompareAndSwap(false, true) {
		res := a.Current()
		res.Status = RefreshDropped
		return res, nil
	}
	defer a.inFlight.Store(false)

	if !force && a.withinMovementThreshold(location) {
		res := a.Current()
		res.Status = RefreshDebounced
		return res, nil
	}

	results, total := a.query(ctx, location, a.config.ZoneRadiusMeters)
	if err := ctx.Err(); err != nil {
		return ProximityResult{}, err
	}

	a.mu.Lock()
	var transition entities.ZoneTransition
	switch {
	case a.zone == ZoneOutside && total > 0:
		a.zone = ZoneInside
		a.reveal = true
		transition = entities.ZoneEntered
	case a.zone == ZoneInside && total == 0:
		a.zone = ZoneOutside
		a.reveal = false
		transition = entities.ZoneLeft
	}
	loc := location
	a.lastLocation = &loc
	a.last = ProximityResult{
		Status:      RefreshEvaluated,
		Location:    &loc,
		EvaluatedAt: a.now().UTC(),
		Sources:     results,
		Total:       total,
		Zone:        a.zone,
		Reveal:      a.reveal,
		Transition:  transition,
	}
	res := a.last
	a.mu.Unlock()

	if transition != "" {
		event := entities.ZoneEvent{
			Transition: transition,
			Location:   location,
			Total:      total,
			Counts:     countsBySource(results),
			At:         res.EvaluatedAt,
		}
		if transition == entities.ZoneEntered {
			a.notifier.ZoneEntered(ctx, event)
		} else {
			a.notifier.ZoneLeft(ctx, event)
		}
	}
	return res, nil
}

// Current returns the last evaluated result.
func (a *ProximityAggregator) Current() ProximityResult {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.last
}

// DismissReveal hides the reveal card without leaving the zone. The next
// entry into a zone will reveal again.
func (a *ProximityAggregator) DismissReveal() ProximityResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reveal = false
	a.last.Reveal = false
	return a.last
}

// FindNearby queries every source at radiusMeters without touching zone
// state or the debounce anchor.
func (a *ProximityAggregator) FindNearby(ctx context.Context, location entities.GeoPoint, radiusMeters float64) ([]SourceResult, int, error) {
	if err := location.Validate(); err != nil {
		return nil, 0, err
	}
	results, total := a.query(ctx, location, radiusMeters)
	return results, total, ctx.Err()
}

func (a *ProximityAggregator) withinMovementThreshold(location entities.GeoPoint) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastLocation == nil {
		return false
	}
	moved := utils.DistanceMeters(a.lastLocation.Latitude, a.lastLocation.Longitude, location.Latitude, location.Longitude)
	return moved <= a.config.MinMovementMeters
}

// query fans out to every source concurrently. Sources touch disjoint state,
// so their queries can overlap; results keep registration order.
func (a *ProximityAggregator) query(ctx context.Context, location entities.GeoPoint, radiusMeters float64) ([]SourceResult, int) {
	results := make([]SourceResult, len(a.sources))

	var wg sync.WaitGroup
	for i, src := range a.sources {
		wg.Add(1)
		go func(i int, src sources.Source) {
			defer wg.Done()

			res := SourceResult{Source: src.Kind(), Items: []entities.ResultItem{}}
			items, err := src.FindNearby(ctx, location, radiusMeters)
			if err != nil {
				log.Printf("[PROXIMITY] Source %s query failed: %v", src.Kind(), err)
				res.Error = err.Error()
			} else {
				res.Items = items
			}
			results[i] = res
		}(i, src)
	}
	wg.Wait()

	total := 0
	for _, r := range results {
		total += len(r.Items)
	}
	return results, total
}

func countsBySource(results []SourceResult) map[entities.SourceKind]int {
	counts := make(map[entities.SourceKind]int, len(results))
	for _, r := range results {
		counts[r.Source] = len(r.Items)
	}
	return counts
}
