package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kilroy/internal/domain/entities"
	"kilroy/internal/repository"
)

func TestPinRepository_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	repo, err := NewPinRepository(dir)
	require.NoError(t, err)

	first := entities.NewDroppedPin("p1", entities.NewGeoPoint(37.77, -122.42), "p1.jpg", "first", "Ferry Building", "1 Ferry Plaza")
	second := entities.NewDroppedPin("p2", entities.NewGeoPoint(40.71, -74.0), "p2.jpg", "", "", "")
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))

	reopened, err := NewPinRepository(dir)
	require.NoError(t, err)

	pins, err := reopened.List(ctx)
	require.NoError(t, err)
	require.Len(t, pins, 2)
	assert.Equal(t, "p2", pins[0].ID, "new pins are inserted at the front")
	assert.Equal(t, "first", entities.Deref(pins[1].Comment))
	assert.Nil(t, pins[0].Comment)
	assert.InDelta(t, 37.77, pins[1].Coordinate.Latitude, 1e-9)
}

func TestPinRepository_SaveReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	repo, err := NewPinRepository(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, entities.NewDroppedPin("a", entities.NewGeoPoint(1, 1), "a.jpg", "", "", "")))
	require.NoError(t, repo.Save(ctx, entities.NewDroppedPin("b", entities.NewGeoPoint(2, 2), "b.jpg", "", "", "")))

	pin, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	pin.MarkSynced(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Save(ctx, pin))

	pins, _ := repo.List(ctx)
	require.Len(t, pins, 2)
	assert.Equal(t, []string{"b", "a"}, []string{pins[0].ID, pins[1].ID})
	assert.True(t, pins[1].IsSynced())
}

func TestPinRepository_Delete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := NewPinRepository(dir)
	require.NoError(t, err)

	require.NoError(t, repo.Save(ctx, entities.NewDroppedPin("a", entities.NewGeoPoint(1, 1), "a.jpg", "", "", "")))
	require.NoError(t, repo.Delete(ctx, "a"))
	assert.ErrorIs(t, repo.Delete(ctx, "a"), repository.ErrPinNotFound)

	_, err = repo.Get(ctx, "a")
	assert.ErrorIs(t, err, repository.ErrPinNotFound)

	reopened, err := NewPinRepository(dir)
	require.NoError(t, err)
	pins, _ := reopened.List(ctx)
	assert.Empty(t, pins)
}

func TestNewPinRepository_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultFileName), []byte("{not json"), 0o644))

	_, err := NewPinRepository(dir)
	assert.Error(t, err)
}

func TestPinRepository_MarkSynced(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	repo, err := NewPinRepository(dir)
	require.NoError(t, err)
	at := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	_, err = repo.MarkSynced(ctx, "gone", at)
	assert.ErrorIs(t, err, repository.ErrPinNotFound)
	pins, _ := repo.List(ctx)
	assert.Empty(t, pins, "MarkSynced must not insert")

	require.NoError(t, repo.Save(ctx, entities.NewDroppedPin("a", entities.NewGeoPoint(1, 1), "a.jpg", "", "", "")))
	got, err := repo.MarkSynced(ctx, "a", at)
	require.NoError(t, err)
	assert.True(t, got.IsSynced())

	reopened, err := NewPinRepository(dir)
	require.NoError(t, err)
	stored, err := reopened.Get(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, stored.SyncedAt)
	assert.True(t, at.Equal(*stored.SyncedAt))
}
