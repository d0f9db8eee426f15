package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"kilroy/internal/domain/entities"
	"kilroy/internal/geo"
	"kilroy/internal/repository"
	"kilroy/internal/sources"
	"kilroy/pkg/utils"
)

var (
	ErrNotAdmin     = errors.New("device is not an admin")
	ErrMissingImage = errors.New("image reference is required")
	ErrSyncInFlight = errors.New("pin sync already in progress")
)

// DefaultPlaceName is written to backend documents for pins dropped without
// a place name; the document schema requires one.
const DefaultPlaceName = "Unknown Location"

// PinServiceConfig controls identity and background sync behaviour.
type PinServiceConfig struct {
	DeviceID         string
	AdminDeviceIDs   []string
	GeohashPrecision int
	SyncMaxAttempts  int
	SyncBackoff      time.Duration
	SyncLockTTL      time.Duration
}

// DropRequest is the payload for dropping a new pin.
type DropRequest struct {
	Coordinate   entities.GeoPoint `json:"coordinate"`
	ImageRef     string            `json:"image_ref"`
	Comment      string            `json:"comment"`
	PlaceName    string            `json:"place_name"`
	PlaceAddress string            `json:"place_address"`
}

// SeedRequest is the payload for an admin-seeded backend document. A zero
// CreatedAt means now.
type SeedRequest struct {
	Coordinate   entities.GeoPoint `json:"coordinate"`
	ImageURL     string            `json:"image_url"`
	PlaceName    string            `json:"place_name"`
	PlaceAddress string            `json:"place_address"`
	Comment      string            `json:"comment"`
	CreatedAt    time.Time         `json:"created_at"`
}

// SyncResult is the outcome of one background sync.
type SyncResult struct {
	PinID    string
	Attempts int
	Error    error
}

// PinService owns the dropped-pin lifecycle: save locally, index, then push
// the backend document in the background.
//
// A drop succeeds as soon as the pin is durably saved. The backend write runs
// afterwards with retry and exponential backoff; if every attempt fails the
// pin stays unsynced until the next Resync. Sync never rolls back or blocks
// the local save.
type PinService struct {
	repo      repository.PinRepository
	pins      *sources.PinSource
	store     repository.KilroyStore
	locks     repository.LockManager
	publisher PinEventPublisher
	config    PinServiceConfig
	admins    map[string]struct{}
	now       func() time.Time

	// indexMu orders a pin's removal against its post-sync re-index, so a
	// Delete is never undone by a sync finishing behind it.
	indexMu sync.Mutex

	// syncCtx outlives the request that dropped the pin; Close cancels it.
	syncCtx    context.Context
	cancelSync context.CancelFunc
	syncWG     sync.WaitGroup
}

func NewPinService(
	repo repository.PinRepository,
	pins *sources.PinSource,
	store repository.KilroyStore,
	locks repository.LockManager,
	publisher PinEventPublisher,
	cfg PinServiceConfig,
) *PinService {
	if cfg.GeohashPrecision <= 0 {
		cfg.GeohashPrecision = geo.DefaultPrecision
	}
	if cfg.SyncMaxAttempts <= 0 {
		cfg.SyncMaxAttempts = 1
	}
	if cfg.SyncLockTTL <= 0 {
		cfg.SyncLockTTL = time.Minute
	}
	if publisher == nil {
		publisher = NewNotificationService()
	}
	admins := make(map[string]struct{}, len(cfg.AdminDeviceIDs))
	for _, id := range cfg.AdminDeviceIDs {
		if id = strings.TrimSpace(id); id != "" {
			admins[id] = struct{}{}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &PinService{
		repo:       repo,
		pins:       pins,
		store:      store,
		locks:      locks,
		publisher:  publisher,
		config:     cfg,
		admins:     admins,
		now:        time.Now,
		syncCtx:    ctx,
		cancelSync: cancel,
	}
}

// Drop saves a new pin, makes it findable through the pin source, and starts
// its background sync.
func (s *PinService) Drop(ctx context.Context, req DropRequest) (*entities.DroppedPin, error) {
	if err := req.Coordinate.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ImageRef) == "" {
		return nil, ErrMissingImage
	}

	pin := entities.NewDroppedPin(utils.GenerateID(), req.Coordinate, req.ImageRef, req.Comment, req.PlaceName, req.PlaceAddress)
	pin.CapturedAt = s.now().UTC()
	if err := s.repo.Save(ctx, pin); err != nil {
		return nil, fmt.Errorf("save pin: %w", err)
	}
	if err := s.pins.Added(pin); err != nil {
		log.Printf("[SYNC] Pin %s saved but not indexed: %v", pin.ID, err)
	}

	s.publish(ctx, entities.PinDropped, pin)
	log.Printf("[SYNC] Dropped pin %s at (%.5f, %.5f)", pin.ID, pin.Coordinate.Latitude, pin.Coordinate.Longitude)

	s.StartSync(*pin)
	return pin, nil
}

// Delete removes a pin locally and from the pin source. The backend document,
// if any, is left in place.
func (s *PinService) Delete(ctx context.Context, id string) error {
	pin, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	s.indexMu.Lock()
	err = s.repo.Delete(ctx, id)
	if err == nil {
		s.pins.Removed(id)
	}
	s.indexMu.Unlock()
	if err != nil {
		return err
	}
	s.publish(ctx, entities.PinDeleted, pin)
	return nil
}

// List returns every local pin, newest first.
func (s *PinService) List(ctx context.Context) ([]*entities.DroppedPin, error) {
	return s.repo.List(ctx)
}

// Resync starts a background sync for every pin that has not reached the
// backend yet and returns how many were scheduled.
func (s *PinService) Resync(ctx context.Context) (int, error) {
	pins, err := s.repo.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range pins {
		if p.IsSynced() {
			continue
		}
		s.StartSync(*p)
		n++
	}
	if n > 0 {
		log.Printf("[SYNC] Rescheduled %d unsynced pins", n)
	}
	return n, nil
}

// IsAdmin reports whether deviceID may seed documents.
func (s *PinService) IsAdmin(deviceID string) bool {
	_, ok := s.admins[deviceID]
	return ok
}

// Seed writes a backend document directly, with a caller-chosen timestamp.
// Only whitelisted admin devices may seed.
func (s *PinService) Seed(ctx context.Context, deviceID string, req SeedRequest) (*entities.Kilroy, error) {
	if !s.IsAdmin(deviceID) {
		return nil, ErrNotAdmin
	}
	if err := req.Coordinate.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ImageURL) == "" {
		return nil, ErrMissingImage
	}
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	doc := &entities.Kilroy{
		ID:           utils.GenerateID(),
		ImageURL:     req.ImageURL,
		Latitude:     req.Coordinate.Latitude,
		Longitude:    req.Coordinate.Longitude,
		Geohash:      geo.Encode(req.Coordinate.Latitude, req.Coordinate.Longitude, s.config.GeohashPrecision),
		PlaceName:    strings.TrimSpace(req.PlaceName),
		PlaceAddress: optionalString(req.PlaceAddress),
		Comment:      optionalString(req.Comment),
		CreatedAt:    createdAt.UTC(),
		DeviceID:     deviceID,
		IsSeeded:     true,
	}
	if doc.PlaceName == "" {
		doc.PlaceName = DefaultPlaceName
	}
	if err := s.store.Put(ctx, doc); err != nil {
		return nil, fmt.Errorf("seed kilroy: %w", err)
	}
	log.Printf("[SYNC] Admin %s seeded %s at %s", deviceID, doc.ID, doc.Geohash)
	return doc, nil
}

// StartSync uploads pin in a background goroutine. The returned channel
// receives exactly one SyncResult and is then closed.
//
// Go Learning Note — Futures with Channels:
// Returning a buffered, receive-only channel lets callers choose: ignore it
// (fire and forget, as Drop does) or block on <-ch for the outcome, as the
// tests do. The buffer of one means the goroutine never blocks on send even
// when nobody is listening.
func (s *PinService) StartSync(pin entities.DroppedPin) <-chan SyncResult {
	resultChan := make(chan SyncResult, 1)

	s.syncWG.Add(1)
	go func() {
		defer s.syncWG.Done()
		defer close(resultChan)
		resultChan <- s.syncLoop(s.syncCtx, pin)
	}()

	return resultChan
}

// syncLoop takes the per-pin lock, then retries the backend write with
// exponential backoff until it succeeds, attempts run out, or ctx ends.
func (s *PinService) syncLoop(ctx context.Context, pin entities.DroppedPin) SyncResult {
	result := SyncResult{PinID: pin.ID}

	lockKey := "sync:" + pin.ID
	token, acquired, err := s.locks.AcquireLock(ctx, lockKey, s.config.SyncLockTTL)
	if err != nil {
		result.Error = err
		return result
	}
	if !acquired {
		log.Printf("[SYNC] Pin %s already syncing", pin.ID)
		result.Error = ErrSyncInFlight
		return result
	}
	defer s.locks.ReleaseLock(context.Background(), lockKey, token)

	backoff := s.config.SyncBackoff
	for attempt := 1; attempt <= s.config.SyncMaxAttempts; attempt++ {
		result.Attempts = attempt
		err := s.syncOnce(ctx, pin)
		if err == nil {
			result.Error = nil
			return result
		}
		result.Error = err
		log.Printf("[SYNC] Pin %s attempt %d/%d failed: %v", pin.ID, attempt, s.config.SyncMaxAttempts, err)

		if attempt == s.config.SyncMaxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			result.Error = ctx.Err()
			return result
		}
	}
	log.Printf("[SYNC] Giving up on pin %s until next resync", pin.ID)
	return result
}

func (s *PinService) syncOnce(ctx context.Context, pin entities.DroppedPin) error {
	doc := s.documentFor(pin)
	if err := s.store.Put(ctx, doc); err != nil {
		return err
	}

	// The pin may have been deleted while the write was in flight. MarkSynced
	// only touches an existing pin, and indexMu keeps a Delete from slipping
	// in between the stamp and the re-index.
	s.indexMu.Lock()
	current, err := s.repo.MarkSynced(ctx, pin.ID, s.now())
	if err == nil {
		if err := s.pins.Added(current); err != nil {
			log.Printf("[SYNC] Re-index pin %s: %v", pin.ID, err)
		}
	}
	s.indexMu.Unlock()

	if errors.Is(err, repository.ErrPinNotFound) {
		log.Printf("[SYNC] Pin %s deleted during sync; document %s kept", pin.ID, doc.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}

	s.publish(ctx, entities.PinSynced, current)
	log.Printf("[SYNC] Pin %s synced as %s", pin.ID, doc.Geohash)
	return nil
}

// documentFor builds the backend document for a pin. The pin id doubles as
// the document id so repeated syncs overwrite rather than duplicate.
func (s *PinService) documentFor(pin entities.DroppedPin) *entities.Kilroy {
	placeName := entities.Deref(pin.PlaceName)
	if placeName == "" {
		placeName = DefaultPlaceName
	}
	return &entities.Kilroy{
		ID:           pin.ID,
		ImageURL:     pin.ImageRef,
		Latitude:     pin.Coordinate.Latitude,
		Longitude:    pin.Coordinate.Longitude,
		Geohash:      geo.Encode(pin.Coordinate.Latitude, pin.Coordinate.Longitude, s.config.GeohashPrecision),
		PlaceName:    placeName,
		PlaceAddress: pin.PlaceAddress,
		Comment:      pin.Comment,
		CreatedAt:    pin.CapturedAt,
		DeviceID:     s.config.DeviceID,
	}
}

func (s *PinService) publish(ctx context.Context, action entities.PinAction, pin *entities.DroppedPin) {
	s.publisher.PublishPinEvent(ctx, entities.PinEvent{
		Action:   action,
		PinID:    pin.ID,
		Location: pin.Coordinate,
		Geohash:  geo.Encode(pin.Coordinate.Latitude, pin.Coordinate.Longitude, s.config.GeohashPrecision),
		At:       s.now().UTC(),
	})
}

// Wait blocks until every background sync has finished.
func (s *PinService) Wait() {
	s.syncWG.Wait()
}

// Close cancels pending retries and waits for in-flight syncs to return.
func (s *PinService) Close() {
	s.cancelSync()
	s.syncWG.Wait()
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
