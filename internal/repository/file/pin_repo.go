// Package file stores dropped pins as a JSON document on local disk.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"kilroy/internal/domain/entities"
	"kilroy/internal/repository"
)

// DefaultFileName is the pin document inside the data directory.
const DefaultFileName = "memories.json"

// PinRepository keeps every pin in memory, newest first, and rewrites the
// whole JSON file on each change. The file is written to a temp sibling and
// renamed into place so a crash never leaves a half-written document.
type PinRepository struct {
	mu   sync.RWMutex
	path string
	pins []*entities.DroppedPin
}

// NewPinRepository opens (or creates) the pin document under dir.
func NewPinRepository(dir string) (*PinRepository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create pin directory: %w", err)
	}
	r := &PinRepository{path: filepath.Join(dir, DefaultFileName)}
	if err := r.load(); err != nil {
		return nil, err
	}
	log.Printf("[STORE] Loaded %d pins from %s", len(r.pins), r.path)
	return r, nil
}

func (r *PinRepository) load() error {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", r.path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, &r.pins); err != nil {
		return fmt.Errorf("decode %s: %w", r.path, err)
	}
	return nil
}

// persist must be called with mu held for writing.
func (r *PinRepository) persist() error {
	data, err := json.MarshalIndent(r.pins, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pins: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func (r *PinRepository) List(ctx context.Context) ([]*entities.DroppedPin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entities.DroppedPin, len(r.pins))
	for i, p := range r.pins {
		cp := *p
		out[i] = &cp
	}
	return out, nil
}

func (r *PinRepository) Get(ctx context.Context, id string) (*entities.DroppedPin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i := r.indexOf(id); i >= 0 {
		cp := *r.pins[i]
		return &cp, nil
	}
	return nil, repository.ErrPinNotFound
}

// Save replaces an existing pin in place or inserts a new one at the front.
// On a write failure the in-memory list is rolled back.
func (r *PinRepository) Save(ctx context.Context, pin *entities.DroppedPin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.pins
	cp := *pin
	next := make([]*entities.DroppedPin, 0, len(prev)+1)
	if i := r.indexOf(pin.ID); i >= 0 {
		next = append(next, prev...)
		next[i] = &cp
	} else {
		next = append(next, &cp)
		next = append(next, prev...)
	}

	r.pins = next
	if err := r.persist(); err != nil {
		r.pins = prev
		return err
	}
	return nil
}

// MarkSynced updates the pin in place under the write lock, so a concurrent
// Delete either wins outright or sees the synced pin.
func (r *PinRepository) MarkSynced(ctx context.Context, id string, at time.Time) (*entities.DroppedPin, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, repository.ErrPinNotFound
	}
	prev := r.pins
	updated := *prev[i]
	updated.MarkSynced(at)
	next := make([]*entities.DroppedPin, len(prev))
	copy(next, prev)
	next[i] = &updated

	r.pins = next
	if err := r.persist(); err != nil {
		r.pins = prev
		return nil, err
	}
	cp := updated
	return &cp, nil
}

func (r *PinRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return repository.ErrPinNotFound
	}
	prev := r.pins
	next := make([]*entities.DroppedPin, 0, len(prev)-1)
	next = append(next, prev[:i]...)
	next = append(next, prev[i+1:]...)

	r.pins = next
	if err := r.persist(); err != nil {
		r.pins = prev
		return err
	}
	return nil
}

func (r *PinRepository) indexOf(id string) int {
	for i, p := range r.pins {
		if p.ID == id {
			return i
		}
	}
	return -1
}
