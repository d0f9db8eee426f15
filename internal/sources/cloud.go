package sources

import (
	"context"

	"kilroy/internal/domain/entities"
	"kilroy/internal/geo"
	"kilroy/internal/repository"
)

const (
	// DefaultMaxCloudItems caps how many cloud photos one rebuild indexes.
	DefaultMaxCloudItems = 5000
	// ThumbnailSuffix asks the photo CDN for a 400x400 center crop.
	ThumbnailSuffix = "=w400-h400-c"
)

// CloudPhotoSource pages through a CloudPhotoProvider and indexes the photos
// that carry GPS data, stopping at the last page or at maxItems indexed
// photos, whichever comes first.
type CloudPhotoSource struct {
	*indexedSource[repository.CloudPhoto]
	provider repository.CloudPhotoProvider
	maxItems int
}

func NewCloudPhotoSource(provider repository.CloudPhotoProvider, resolution float64, maxItems int) *CloudPhotoSource {
	if maxItems <= 0 {
		maxItems = DefaultMaxCloudItems
	}
	s := &CloudPhotoSource{provider: provider, maxItems: maxItems}
	s.indexedSource = newIndexedSource[repository.CloudPhoto](entities.SourceCloudPhotos, resolution, s.load, hydrateCloudPhoto)
	return s
}

func (s *CloudPhotoSource) load(ctx context.Context, b *builder[repository.CloudPhoto]) error {
	token := ""
	for {
		page, err := s.provider.FetchPage(ctx, token)
		if err != nil {
			return err
		}
		for _, p := range page.Items {
			if p.Location == nil {
				b.skip()
				continue
			}
			b.add(entities.IndexedItem{
				ID:         p.ID,
				Coordinate: *p.Location,
				Timestamp:  p.CreatedAt,
				PayloadRef: p.ID,
			}, p)
			if b.count() >= s.maxItems {
				return nil
			}
		}
		if page.NextPageToken == "" {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		token = page.NextPageToken
	}
}

func hydrateCloudPhoto(hit geo.Hit, p repository.CloudPhoto) entities.ResultItem {
	r := baseResult(entities.SourceCloudPhotos, hit)
	r.ThumbnailURL = p.BaseURL + ThumbnailSuffix
	r.Width = p.Width
	r.Height = p.Height
	return r
}
