// Package repository declares the collaborators the proximity subsystem talks
// to: the on-device photo library, the cloud photo provider, the local pin
// store and the backend document store. Implementations live in the memory,
// file, postgres and firestore sub-packages and in internal/photos.
package repository

import (
	"context"
	"errors"
	"time"

	"kilroy/internal/domain/entities"
)

var (
	// ErrPinNotFound is returned by PinRepository implementations for unknown ids.
	ErrPinNotFound = errors.New("pin not found")
	// ErrAssetNotFound is returned by PhotoLibrary.LoadThumbnail for unknown ids.
	ErrAssetNotFound = errors.New("asset not found")
)

// Asset is one entry of the photo library. Location is nil when the photo
// carries no GPS data.
type Asset struct {
	ID       string
	Location *entities.GeoPoint
	TakenAt  time.Time
}

// PhotoLibrary enumerates image assets and renders thumbnails on demand.
type PhotoLibrary interface {
	// WalkAssets calls fn for every image asset. Iteration stops at the first
	// error returned by fn or when ctx is cancelled.
	WalkAssets(ctx context.Context, fn func(Asset) error) error
	// LoadThumbnail returns a JPEG whose longest edge is at most size pixels.
	LoadThumbnail(ctx context.Context, id string, size int) ([]byte, error)
}

// CloudPhoto is one media item returned by the cloud photo provider.
type CloudPhoto struct {
	ID        string
	BaseURL   string
	Location  *entities.GeoPoint
	CreatedAt time.Time
	Width     int
	Height    int
}

// Page is one page of cloud photo results. An empty NextPageToken marks the
// last page.
type Page struct {
	Items         []CloudPhoto
	NextPageToken string
}

// CloudPhotoProvider lists the user's cloud media page by page.
type CloudPhotoProvider interface {
	FetchPage(ctx context.Context, pageToken string) (Page, error)
}

// PinRepository is the durable local store for dropped pins.
type PinRepository interface {
	// List returns every pin, newest first.
	List(ctx context.Context) ([]*entities.DroppedPin, error)
	Get(ctx context.Context, id string) (*entities.DroppedPin, error)
	// Save inserts or replaces a pin.
	Save(ctx context.Context, pin *entities.DroppedPin) error
	// MarkSynced stamps SyncedAt on an existing pin and returns the updated
	// pin. It never inserts: a deleted pin yields ErrPinNotFound.
	MarkSynced(ctx context.Context, id string, at time.Time) (*entities.DroppedPin, error)
	Delete(ctx context.Context, id string) error
}

// KilroyStore is the backend document collection.
type KilroyStore interface {
	// Put writes the document under its id, replacing any existing one.
	Put(ctx context.Context, doc *entities.Kilroy) error
	// RangeQuery returns every document whose geohash g satisfies lo <= g < hi.
	RangeQuery(ctx context.Context, lo, hi string) ([]*entities.Kilroy, error)
	// Latest returns up to limit documents ordered by createdAt, newest first.
	Latest(ctx context.Context, limit int) ([]*entities.Kilroy, error)
}

// LockManager hands out short-lived named locks. Each acquisition returns a
// token, and ReleaseLock only frees the lock for the token that holds it.
type LockManager interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseLock(ctx context.Context, key, token string) error
	IsLocked(ctx context.Context, key string) (bool, error)
}
