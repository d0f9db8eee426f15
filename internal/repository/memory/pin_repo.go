package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"kilroy/internal/domain/entities"
	"kilroy/internal/repository"
)

// PinRepository keeps dropped pins in a map. It backs tests and runs where no
// persistent pin store is configured; pins do not survive a restart.
type PinRepository struct {
	mu   sync.RWMutex
	pins map[string]*entities.DroppedPin
}

func NewPinRepository() *PinRepository {
	return &PinRepository{
		pins: make(map[string]*entities.DroppedPin),
	}
}

// List returns copies of every pin, newest first.
func (r *PinRepository) List(ctx context.Context) ([]*entities.DroppedPin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entities.DroppedPin, 0, len(r.pins))
	for _, p := range r.pins {
		cp := *p
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CapturedAt.After(out[j].CapturedAt)
	})
	return out, nil
}

func (r *PinRepository) Get(ctx context.Context, id string) (*entities.DroppedPin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.pins[id]
	if !exists {
		return nil, repository.ErrPinNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *PinRepository) Save(ctx context.Context, pin *entities.DroppedPin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *pin
	r.pins[pin.ID] = &cp
	return nil
}

func (r *PinRepository) MarkSynced(ctx context.Context, id string, at time.Time) (*entities.DroppedPin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.pins[id]
	if !exists {
		return nil, repository.ErrPinNotFound
	}
	p.MarkSynced(at)
	cp := *p
	return &cp, nil
}

func (r *PinRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pins[id]; !exists {
		return repository.ErrPinNotFound
	}
	delete(r.pins, id)
	return nil
}
