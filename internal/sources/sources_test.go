package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kilroy/internal/domain/entities"
	"kilroy/internal/geo"
	"kilroy/internal/repository"
	"kilroy/internal/repository/memory"
)

type fakeLibrary struct {
	mu      sync.Mutex
	assets  []repository.Asset
	failAt  int // fail when visiting this index; -1 disables
	failErr error
	onVisit func(i int)
}

func (f *fakeLibrary) WalkAssets(ctx context.Context, fn func(repository.Asset) error) error {
	f.mu.Lock()
	assets := append([]repository.Asset(nil), f.assets...)
	failAt, failErr := f.failAt, f.failErr
	f.mu.Unlock()

	for i, a := range assets {
		if f.onVisit != nil {
			f.onVisit(i)
		}
		if i == failAt {
			return failErr
		}
		if err := fn(a); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeLibrary) LoadThumbnail(ctx context.Context, id string, size int) ([]byte, error) {
	return []byte(fmt.Sprintf("%s@%d", id, size)), nil
}

func (f *fakeLibrary) set(assets []repository.Asset) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assets = assets
}

func located(id string, lat, lon float64) repository.Asset {
	pt := entities.NewGeoPoint(lat, lon)
	return repository.Asset{ID: id, Location: &pt, TakenAt: time.Date(2015, 8, 1, 0, 0, 0, 0, time.UTC)}
}

func resultIDs(results []entities.ResultItem) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func TestLibrarySource_BuildAndFind(t *testing.T) {
	lib := &fakeLibrary{failAt: -1, assets: []repository.Asset{
		located("a", 0, 0),
		located("b", 0, 0.0003),
		{ID: "no-gps", TakenAt: time.Now()},
		located("far", 1, 1),
	}}
	src := NewLibrarySource(lib, geo.DefaultGridResolution)
	ctx := context.Background()

	require.NoError(t, src.BuildIndex(ctx))
	assert.Equal(t, 3, src.Count())
	assert.Equal(t, 1, src.Status().Skipped)
	assert.False(t, src.Status().BuiltAt.IsZero())

	results, err := src.FindNearby(ctx, entities.NewGeoPoint(0, 0), 50)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, resultIDs(results))
	assert.Equal(t, entities.SourceLibrary, results[0].Source)
	assert.Equal(t, "b", results[1].ImageRef)
	assert.InDelta(t, 33.4, results[1].DistanceMeters, 0.5)
	assert.Equal(t, 2015, results[0].Timestamp.Year())

	thumb, err := src.Thumbnail(ctx, "a", 200)
	require.NoError(t, err)
	assert.Equal(t, "a@200", string(thumb))
}

func TestLibrarySource_RebuildIsIdempotent(t *testing.T) {
	lib := &fakeLibrary{failAt: -1, assets: []repository.Asset{located("a", 10, 10), located("b", 10, 10.0001)}}
	src := NewLibrarySource(lib, geo.DefaultGridResolution)
	ctx := context.Background()

	require.NoError(t, src.BuildIndex(ctx))
	first, err := src.FindNearby(ctx, entities.NewGeoPoint(10, 10), 50)
	require.NoError(t, err)

	require.NoError(t, src.BuildIndex(ctx))
	second, err := src.FindNearby(ctx, entities.NewGeoPoint(10, 10), 50)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, src.Count())
}

func TestLibrarySource_FailedRebuildKeepsPreviousIndex(t *testing.T) {
	lib := &fakeLibrary{failAt: -1, assets: []repository.Asset{located("old", 5, 5)}}
	src := NewLibrarySource(lib, geo.DefaultGridResolution)
	ctx := context.Background()
	require.NoError(t, src.BuildIndex(ctx))

	boom := errors.New("permission revoked")
	lib.set([]repository.Asset{located("new-1", 5, 5), located("new-2", 5, 5)})
	lib.failAt, lib.failErr = 1, boom

	err := src.BuildIndex(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "permission revoked", src.Status().LastError)

	results, err := src.FindNearby(ctx, entities.NewGeoPoint(5, 5), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, resultIDs(results))

	lib.failAt = -1
	require.NoError(t, src.BuildIndex(ctx))
	assert.Empty(t, src.Status().LastError)
	assert.Equal(t, 2, src.Count())
}

func TestLibrarySource_CancelledRebuildIsDiscarded(t *testing.T) {
	lib := &fakeLibrary{failAt: -1, assets: []repository.Asset{located("old", 5, 5)}}
	src := NewLibrarySource(lib, geo.DefaultGridResolution)
	require.NoError(t, src.BuildIndex(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	lib.set([]repository.Asset{located("n1", 5, 5), located("n2", 5, 5), located("n3", 5, 5)})
	lib.onVisit = func(i int) {
		if i == 1 {
			cancel()
		}
	}

	err := src.BuildIndex(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, src.Count())

	_, ok := src.current.Load().meta["n1"]
	assert.False(t, ok, "partial build must not be visible")
}

func TestSource_FindNearbyBeforeBuild(t *testing.T) {
	src := NewLibrarySource(&fakeLibrary{failAt: -1}, geo.DefaultGridResolution)
	results, err := src.FindNearby(context.Background(), entities.NewGeoPoint(0, 0), 50)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSource_FindNearbyRejectsBadInput(t *testing.T) {
	src := NewLibrarySource(&fakeLibrary{failAt: -1}, geo.DefaultGridResolution)
	ctx := context.Background()

	_, err := src.FindNearby(ctx, entities.NewGeoPoint(0, 0), -5)
	assert.ErrorIs(t, err, geo.ErrInvalidRadius)

	_, err = src.FindNearby(ctx, entities.NewGeoPoint(100, 0), 5)
	assert.ErrorIs(t, err, entities.ErrInvalidCoordinate)
}

type fakeCloud struct {
	pages  map[string]repository.Page
	calls  []string
	failOn string
}

func (f *fakeCloud) FetchPage(ctx context.Context, token string) (repository.Page, error) {
	f.calls = append(f.calls, token)
	if token == f.failOn && f.failOn != "" {
		return repository.Page{}, errors.New("quota exceeded")
	}
	return f.pages[token], nil
}

func cloudPhoto(id string, lat, lon float64) repository.CloudPhoto {
	pt := entities.NewGeoPoint(lat, lon)
	return repository.CloudPhoto{
		ID:        id,
		BaseURL:   "https://lh3.example/" + id,
		Location:  &pt,
		CreatedAt: time.Date(2020, 2, 2, 0, 0, 0, 0, time.UTC),
		Width:     4000,
		Height:    3000,
	}
}

func TestCloudPhotoSource_PagesUntilExhausted(t *testing.T) {
	cloud := &fakeCloud{pages: map[string]repository.Page{
		"":   {Items: []repository.CloudPhoto{cloudPhoto("c1", 48.85, 2.35), {ID: "no-gps", BaseURL: "x"}}, NextPageToken: "p2"},
		"p2": {Items: []repository.CloudPhoto{cloudPhoto("c2", 48.8501, 2.35)}},
	}}
	src := NewCloudPhotoSource(cloud, geo.DefaultGridResolution, 0)
	ctx := context.Background()

	require.NoError(t, src.BuildIndex(ctx))
	assert.Equal(t, []string{"", "p2"}, cloud.calls)
	assert.Equal(t, 2, src.Count())
	assert.Equal(t, 1, src.Status().Skipped)

	results, err := src.FindNearby(ctx, entities.NewGeoPoint(48.85, 2.35), 50)
	require.NoError(t, err)
	require.Equal(t, []string{"c1", "c2"}, resultIDs(results))
	assert.Equal(t, "https://lh3.example/c1=w400-h400-c", results[0].ThumbnailURL)
	assert.Equal(t, 4000, results[0].Width)
	assert.Equal(t, entities.SourceCloudPhotos, results[0].Source)
}

func TestCloudPhotoSource_StopsAtMaxItems(t *testing.T) {
	cloud := &fakeCloud{pages: map[string]repository.Page{
		"":   {Items: []repository.CloudPhoto{cloudPhoto("c1", 1, 1), cloudPhoto("c2", 1, 1), cloudPhoto("c3", 1, 1)}, NextPageToken: "p2"},
		"p2": {Items: []repository.CloudPhoto{cloudPhoto("c4", 1, 1)}},
	}}
	src := NewCloudPhotoSource(cloud, geo.DefaultGridResolution, 2)

	require.NoError(t, src.BuildIndex(context.Background()))
	assert.Equal(t, 2, src.Count())
	assert.Equal(t, []string{""}, cloud.calls, "no further pages once the cap is reached")
}

func TestCloudPhotoSource_PageErrorKeepsPreviousIndex(t *testing.T) {
	cloud := &fakeCloud{pages: map[string]repository.Page{
		"": {Items: []repository.CloudPhoto{cloudPhoto("c1", 1, 1)}},
	}}
	src := NewCloudPhotoSource(cloud, geo.DefaultGridResolution, 0)
	ctx := context.Background()
	require.NoError(t, src.BuildIndex(ctx))

	cloud.pages[""] = repository.Page{Items: []repository.CloudPhoto{cloudPhoto("c9", 1, 1)}, NextPageToken: "p2"}
	cloud.failOn = "p2"

	assert.Error(t, src.BuildIndex(ctx))
	results, err := src.FindNearby(ctx, entities.NewGeoPoint(1, 1), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, resultIDs(results))
}

func TestPinSource_BuildAddRemove(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewPinRepository()
	existing := entities.NewDroppedPin("p1", entities.NewGeoPoint(37.7749, -122.4194), "p1.jpg", "first visit", "Ferry Building", "1 Ferry Plaza")
	require.NoError(t, repo.Save(ctx, existing))

	src := NewPinSource(repo, geo.DefaultGridResolution)
	require.NoError(t, src.BuildIndex(ctx))

	center := entities.NewGeoPoint(37.7749, -122.4194)
	results, err := src.FindNearby(ctx, center, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "first visit", results[0].Comment)
	assert.Equal(t, "Ferry Building", results[0].PlaceName)
	assert.Equal(t, "1 Ferry Plaza", results[0].PlaceAddress)
	assert.Equal(t, "p1.jpg", results[0].ImageRef)
	assert.Equal(t, entities.SourceDroppedPins, results[0].Source)

	before := src.current.Load()
	added := entities.NewDroppedPin("p2", entities.NewGeoPoint(37.7750, -122.4194), "p2.jpg", "", "", "")
	require.NoError(t, src.Added(added))

	results, err = src.FindNearby(ctx, center, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1", "p2"}, resultIDs(results))
	assert.Equal(t, 1, before.index.Len(), "earlier snapshot is untouched")

	src.Removed("p1")
	src.Removed("unknown")
	results, err = src.FindNearby(ctx, center, 50)
	require.NoError(t, err)
	assert.Equal(t, []string{"p2"}, resultIDs(results))
}

func TestPinSource_AddedRejectsInvalidCoordinate(t *testing.T) {
	src := NewPinSource(memory.NewPinRepository(), geo.DefaultGridResolution)
	bad := entities.NewDroppedPin("bad", entities.NewGeoPoint(95, 0), "x.jpg", "", "", "")

	assert.ErrorIs(t, src.Added(bad), entities.ErrInvalidCoordinate)
	assert.Zero(t, src.Count())
}

func TestPinSource_ConcurrentReadsDuringUpdates(t *testing.T) {
	ctx := context.Background()
	src := NewPinSource(memory.NewPinRepository(), geo.DefaultGridResolution)
	center := entities.NewGeoPoint(1, 1)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				_, err := src.FindNearby(ctx, center, 100)
				assert.NoError(t, err)
			}
		}()
	}
	for i := 0; i < 100; i++ {
		require.NoError(t, src.Added(entities.NewDroppedPin(fmt.Sprintf("p%d", i), center, "x.jpg", "", "", "")))
	}
	wg.Wait()
	assert.Equal(t, 100, src.Count())
}

func TestRegistry(t *testing.T) {
	ctx := context.Background()
	lib := NewLibrarySource(&fakeLibrary{failAt: -1, assets: []repository.Asset{located("a", 1, 1)}}, geo.DefaultGridResolution)
	failing := NewCloudPhotoSource(&fakeCloud{failOn: "x", pages: map[string]repository.Page{"": {NextPageToken: "x"}}}, geo.DefaultGridResolution, 0)
	pins := NewPinSource(memory.NewPinRepository(), geo.DefaultGridResolution)

	reg := NewRegistry(lib, failing, pins)
	assert.Len(t, reg.All(), 3)

	err := reg.RebuildAll(ctx)
	assert.ErrorContains(t, err, "quota exceeded")
	assert.Equal(t, 1, lib.Count(), "other sources still rebuild")

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownSource)
	assert.ErrorIs(t, reg.Rebuild(ctx, "nope"), ErrUnknownSource)
	assert.NoError(t, reg.Rebuild(ctx, entities.SourceLibrary))

	statuses := reg.Statuses()
	require.Len(t, statuses, 3)
	assert.Equal(t, entities.SourceCloudPhotos, statuses[1].Kind)
	assert.NotEmpty(t, statuses[1].LastError)
}
