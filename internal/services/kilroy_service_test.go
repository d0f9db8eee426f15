package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kilroy/internal/repository/memory"
)

func newKilroyFixture(t *testing.T) (*KilroyService, *memory.KilroyStore) {
	t.Helper()
	store := memory.NewKilroyStore()
	require.NoError(t, store.Put(context.Background(), doc("a", 51.5080, -0.1281, baseTime)))
	return NewKilroyService(NewRemoteQueryPlanner(store, 0), store), store
}

func TestKilroyService_ServesStaleResultOnFailure(t *testing.T) {
	svc, store := newKilroyFixture(t)
	ctx := context.Background()

	fresh, err := svc.Nearby(ctx, trafalgar, 100, "")
	require.NoError(t, err)
	require.Len(t, fresh.Hits, 1)
	assert.False(t, fresh.Stale)

	store.FailNext(errors.New("offline"))
	stale, err := svc.Nearby(ctx, trafalgar, 100, "")
	assert.ErrorContains(t, err, "offline")
	assert.True(t, stale.Stale)
	assert.Equal(t, fresh.Hits, stale.Hits)
	assert.Equal(t, fresh.FetchedAt, stale.FetchedAt)

	store.FailNext(errors.New("offline"))
	other, err := svc.Nearby(ctx, trafalgar, 100, SortDistanceAsc)
	assert.Error(t, err)
	assert.Empty(t, other.Hits, "no cached answer for a different order")
}

func TestKilroyService_CacheIsBounded(t *testing.T) {
	svc, store := newKilroyFixture(t)
	ctx := context.Background()

	_, err := svc.Nearby(ctx, trafalgar, 1000, "")
	require.NoError(t, err)

	// Every radius is a distinct query, so the first one is pushed out.
	for i := 1; i <= NearbyCacheSize; i++ {
		_, err := svc.Nearby(ctx, trafalgar, float64(i), "")
		require.NoError(t, err)
	}
	assert.Equal(t, NearbyCacheSize, svc.cache.Len())

	store.FailNext(errors.New("offline"))
	res, err := svc.Nearby(ctx, trafalgar, 1000, "")
	assert.Error(t, err)
	assert.False(t, res.Stale, "evicted query must not fall back")
	assert.Empty(t, res.Hits)
}

func TestKilroyService_LatestSkipsMalformed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewKilroyStore()

	good := doc("good", 1, 1, baseTime)
	// Empty strings are accepted, as older clients wrote them.
	sparse := doc("sparse", 1, 1, baseTime.Add(time.Minute))
	sparse.DeviceID = ""
	sparse.PlaceName = ""
	sparse.ImageURL = ""
	undated := doc("undated", 1, 1, time.Time{})
	offMap := doc("off-map", 1, 1, baseTime.Add(time.Hour))
	offMap.Latitude = 123
	require.NoError(t, store.Put(ctx, good))
	require.NoError(t, store.Put(ctx, sparse))
	require.NoError(t, store.Put(ctx, undated))
	require.NoError(t, store.Put(ctx, offMap))

	svc := NewKilroyService(NewRemoteQueryPlanner(store, 0), store)
	docs, err := svc.Latest(ctx, 0)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "sparse", docs[0].ID)
	assert.Equal(t, "good", docs[1].ID)
}
