package memory

import (
	"context"
	"sort"
	"sync"

	"kilroy/internal/domain/entities"
)

// KilroyStore is an in-memory backend document collection with the same
// range semantics as the Firestore store: RangeQuery compares geohash strings
// byte-wise, exactly like an ordered index would.
//
// FailNext lets tests inject a single failure into the next RangeQuery or Put.
type KilroyStore struct {
	mu       sync.RWMutex
	docs     map[string]*entities.Kilroy
	failNext error
	queries  []string
}

func NewKilroyStore() *KilroyStore {
	return &KilroyStore{
		docs: make(map[string]*entities.Kilroy),
	}
}

func (s *KilroyStore) Put(ctx context.Context, doc *entities.Kilroy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.takeFailure(); err != nil {
		return err
	}
	cp := *doc
	s.docs[doc.ID] = &cp
	return nil
}

// RangeQuery returns documents with lo <= geohash < hi, in id order.
func (s *KilroyStore) RangeQuery(ctx context.Context, lo, hi string) ([]*entities.Kilroy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queries = append(s.queries, lo)
	if err := s.takeFailure(); err != nil {
		return nil, err
	}

	var out []*entities.Kilroy
	for _, d := range s.docs {
		if d.Geohash >= lo && d.Geohash < hi {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *KilroyStore) Latest(ctx context.Context, limit int) ([]*entities.Kilroy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.Kilroy, 0, len(s.docs))
	for _, d := range s.docs {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of stored documents.
func (s *KilroyStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// FailNext makes the next Put or RangeQuery return err.
func (s *KilroyStore) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

// QueriedPrefixes returns the lower bounds of every RangeQuery issued so far.
func (s *KilroyStore) QueriedPrefixes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.queries))
	copy(out, s.queries)
	return out
}

func (s *KilroyStore) takeFailure() error {
	err := s.failNext
	s.failNext = nil
	return err
}
