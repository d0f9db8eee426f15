package sources

import (
	"context"

	"kilroy/internal/domain/entities"
	"kilroy/internal/geo"
	"kilroy/internal/repository"
)

// LibrarySource indexes the geotagged photos of a PhotoLibrary. Results carry
// the asset id as ImageRef; thumbnails are rendered on demand.
type LibrarySource struct {
	*indexedSource[repository.Asset]
	library repository.PhotoLibrary
}

func NewLibrarySource(library repository.PhotoLibrary, resolution float64) *LibrarySource {
	s := &LibrarySource{library: library}
	s.indexedSource = newIndexedSource[repository.Asset](entities.SourceLibrary, resolution, s.load, hydrateAsset)
	return s
}

func (s *LibrarySource) load(ctx context.Context, b *builder[repository.Asset]) error {
	return s.library.WalkAssets(ctx, func(a repository.Asset) error {
		if a.Location == nil {
			b.skip()
			return nil
		}
		b.add(entities.IndexedItem{
			ID:         a.ID,
			Coordinate: *a.Location,
			Timestamp:  a.TakenAt,
			PayloadRef: a.ID,
		}, a)
		return ctx.Err()
	})
}

// Thumbnail renders the JPEG thumbnail of an asset.
func (s *LibrarySource) Thumbnail(ctx context.Context, id string, size int) ([]byte, error) {
	return s.library.LoadThumbnail(ctx, id, size)
}

func hydrateAsset(hit geo.Hit, a repository.Asset) entities.ResultItem {
	r := baseResult(entities.SourceLibrary, hit)
	r.ImageRef = a.ID
	return r
}
