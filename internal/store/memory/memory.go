// Package memory implements store.EntityStore in process memory.
// It is used for local development and tests; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"formplane/internal/store"
)

// Store is a mutex-guarded map of entities plus a tombstone set.
type Store struct {
	mu       sync.RWMutex
	entities map[string]*store.Entity
	removed  map[string]time.Time
	now      func() time.Time
}

var _ store.EntityStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		entities: make(map[string]*store.Entity),
		removed:  make(map[string]time.Time),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Upsert(ctx context.Context, e *store.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, gone := s.removed[e.ID]; gone {
		return store.ErrConflict
	}

	current, exists := s.entities[e.ID]
	switch {
	case !exists && e.Revision != 0:
		return store.ErrNotFound
	case exists && current.Revision != e.Revision:
		return store.ErrConflict
	}

	if e.Attributes.Email != "" {
		for id, other := range s.entities {
			if id != e.ID && strings.EqualFold(other.Attributes.Email, e.Attributes.Email) {
				return store.ErrConflict
			}
		}
	}

	now := s.now()
	if !exists && e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	e.Revision++

	s.entities[e.ID] = e.Clone()
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*store.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *Store) List(ctx context.Context) ([]store.Entity, error) {
	return s.ListByState(ctx)
}

// ListByState returns every entity when no states are given.
func (s *Store) ListByState(ctx context.Context, states ...store.State) ([]store.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	want := make(map[store.State]bool, len(states))
	for _, st := range states {
		want[st] = true
	}

	out := make([]store.Entity, 0, len(s.entities))
	for _, e := range s.entities {
		if len(want) > 0 && !want[e.State] {
			continue
		}
		out = append(out, *e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Delete(ctx context.Context, id string, expectedRevision int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entities[id]
	if !ok {
		return store.ErrNotFound
	}
	if e.Revision != expectedRevision {
		return store.ErrConflict
	}
	delete(s.entities, id)
	s.removed[id] = s.now()
	return nil
}

func (s *Store) IsRemoved(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.removed[id]
	return ok, nil
}

func (s *Store) CountByState(ctx context.Context) (map[store.State]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[store.State]int64)
	for _, e := range s.entities {
		counts[e.State]++
	}
	return counts, nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }
