package sources

import (
	"context"
	"fmt"

	"kilroy/internal/domain/entities"
	"kilroy/internal/geo"
	"kilroy/internal/repository"
)

// PinSource indexes the user's dropped pins. Besides full rebuilds it accepts
// Added and Removed notifications, applied copy-on-write, so a freshly
// dropped pin is findable without rescanning the store.
type PinSource struct {
	*indexedSource[entities.DroppedPin]
	repo repository.PinRepository
}

func NewPinSource(repo repository.PinRepository, resolution float64) *PinSource {
	s := &PinSource{repo: repo}
	s.indexedSource = newIndexedSource[entities.DroppedPin](entities.SourceDroppedPins, resolution, s.load, hydratePin)
	return s
}

func (s *PinSource) load(ctx context.Context, b *builder[entities.DroppedPin]) error {
	pins, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, p := range pins {
		b.add(p.IndexedItem(), *p)
	}
	return nil
}

// Added indexes (or re-indexes) one pin.
func (s *PinSource) Added(pin *entities.DroppedPin) error {
	return s.update(func(snap *snapshot[entities.DroppedPin]) error {
		if err := snap.index.Insert(pin.IndexedItem()); err != nil {
			return fmt.Errorf("index pin %s: %w", pin.ID, err)
		}
		snap.meta[pin.ID] = *pin
		return nil
	})
}

// Removed drops one pin from the index. Unknown ids are ignored.
func (s *PinSource) Removed(id string) {
	_ = s.update(func(snap *snapshot[entities.DroppedPin]) error {
		snap.index.Remove(id)
		delete(snap.meta, id)
		return nil
	})
}

func hydratePin(hit geo.Hit, p entities.DroppedPin) entities.ResultItem {
	r := baseResult(entities.SourceDroppedPins, hit)
	r.ImageRef = p.ImageRef
	r.Comment = entities.Deref(p.Comment)
	r.PlaceName = entities.Deref(p.PlaceName)
	r.PlaceAddress = entities.Deref(p.PlaceAddress)
	return r
}
