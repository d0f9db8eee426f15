package sources

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"kilroy/internal/domain/entities"
)

// Registry holds the configured sources in reporting order.
type Registry struct {
	order  []Source
	byKind map[entities.SourceKind]Source
}

// NewRegistry registers sources in the order given. Nil sources are skipped
// so optional sources can be passed unconditionally.
func NewRegistry(srcs ...Source) *Registry {
	r := &Registry{byKind: make(map[entities.SourceKind]Source)}
	for _, s := range srcs {
		if s == nil {
			continue
		}
		r.order = append(r.order, s)
		r.byKind[s.Kind()] = s
	}
	return r
}

// All returns every registered source.
func (r *Registry) All() []Source {
	out := make([]Source, len(r.order))
	copy(out, r.order)
	return out
}

// Get returns the source for kind, or ErrUnknownSource.
func (r *Registry) Get(kind entities.SourceKind) (Source, error) {
	s, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, kind)
	}
	return s, nil
}

// Statuses reports every source's index state.
func (r *Registry) Statuses() []Status {
	out := make([]Status, len(r.order))
	for i, s := range r.order {
		out[i] = s.Status()
	}
	return out
}

// RebuildAll rebuilds every source concurrently. A failing source keeps its
// previous index; the failures are joined into the returned error.
func (r *Registry) RebuildAll(ctx context.Context) error {
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, s := range r.order {
		wg.Add(1)
		go func(s Source) {
			defer wg.Done()
			if err := s.BuildIndex(ctx); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Rebuild rebuilds the named source.
func (r *Registry) Rebuild(ctx context.Context, kind entities.SourceKind) error {
	s, err := r.Get(kind)
	if err != nil {
		return err
	}
	return s.BuildIndex(ctx)
}
