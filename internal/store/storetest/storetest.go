// Package storetest holds behaviour tests shared by every store.EntityStore
// backend.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"

	"formplane/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.EntityStore

// Run exercises the EntityStore contract against the backend built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAndGet", func(t *testing.T) { testInsertAndGet(t, newStore(t)) })
	t.Run("CompareAndSwap", func(t *testing.T) { testCompareAndSwap(t, newStore(t)) })
	t.Run("ConcurrentWritersOneWins", func(t *testing.T) { testConcurrentWriters(t, newStore(t)) })
	t.Run("UpdateOfMissingEntity", func(t *testing.T) { testUpdateMissing(t, newStore(t)) })
	t.Run("UniqueEmail", func(t *testing.T) { testUniqueEmail(t, newStore(t)) })
	t.Run("DeleteTombstones", func(t *testing.T) { testDeleteTombstones(t, newStore(t)) })
	t.Run("ListByState", func(t *testing.T) { testListByState(t, newStore(t)) })
}

func newEntity(email string) *store.Entity {
	return &store.Entity{
		ID: uuid.NewString(),
		Attributes: store.Attributes{
			Name:  "alice",
			Email: email,
			Age:   30,
		},
		DesiredName: "alice",
		State:       store.StatePending,
	}
}

func testInsertAndGet(t *testing.T, s store.EntityStore) {
	ctx := context.Background()
	e := newEntity("alice@example.com")

	require.NoError(t, s.Upsert(ctx, e))
	assert.Equal(t, int64(1), e.Revision)
	assert.False(t, e.CreatedAt.IsZero())

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Attributes, got.Attributes)
	assert.Equal(t, store.StatePending, got.State)
	assert.Nil(t, got.ContainerRef)
	assert.Equal(t, int64(1), got.Revision)

	_, err = s.Get(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testCompareAndSwap(t *testing.T, s store.EntityStore) {
	ctx := context.Background()
	e := newEntity("bob@example.com")
	require.NoError(t, s.Upsert(ctx, e))

	stale := e.Clone()

	e.State = store.StateProvisioning
	e.SetContainer("c-1", "alice")
	require.NoError(t, s.Upsert(ctx, e))
	assert.Equal(t, int64(2), e.Revision)

	stale.State = store.StateFailed
	assert.ErrorIs(t, s.Upsert(ctx, stale), store.ErrConflict)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, store.StateProvisioning, got.State)
	assert.Equal(t, "c-1", got.Ref())
	assert.Equal(t, "alice", got.Name())
}

func testConcurrentWriters(t *testing.T, s store.EntityStore) {
	ctx := context.Background()
	e := newEntity("carol@example.com")
	require.NoError(t, s.Upsert(ctx, e))

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w := e.Clone()
			w.Attributes.Address = uuid.NewString()
			err := s.Upsert(ctx, w)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, store.ErrConflict):
				conflicts++
			default:
				t.Errorf("writer %d: unexpected error %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicts)

	got, err := s.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Revision)
}

func testUpdateMissing(t *testing.T, s store.EntityStore) {
	e := newEntity("dave@example.com")
	e.Revision = 3
	assert.ErrorIs(t, s.Upsert(context.Background(), e), store.ErrNotFound)
}

func testUniqueEmail(t *testing.T, s store.EntityStore) {
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, newEntity("erin@example.com")))
	assert.ErrorIs(t, s.Upsert(ctx, newEntity("erin@example.com")), store.ErrConflict)
}

func testDeleteTombstones(t *testing.T, s store.EntityStore) {
	ctx := context.Background()
	e := newEntity("frank@example.com")
	require.NoError(t, s.Upsert(ctx, e))

	assert.ErrorIs(t, s.Delete(ctx, e.ID, e.Revision+1), store.ErrConflict)
	require.NoError(t, s.Delete(ctx, e.ID, e.Revision))

	_, err := s.Get(ctx, e.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.Delete(ctx, e.ID, e.Revision), store.ErrNotFound)

	removed, err := s.IsRemoved(ctx, e.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	// The id is never handed out again.
	again := newEntity("frank@example.com")
	again.ID = e.ID
	assert.ErrorIs(t, s.Upsert(ctx, again), store.ErrConflict)

	// The email is free once the owner is gone.
	require.NoError(t, s.Upsert(ctx, newEntity("frank@example.com")))
}

func testListByState(t *testing.T, s store.EntityStore) {
	ctx := context.Background()
	a := newEntity("a@example.com")
	b := newEntity("b@example.com")
	require.NoError(t, s.Upsert(ctx, a))
	require.NoError(t, s.Upsert(ctx, b))

	b.State = store.StateReady
	b.SetContainer("c-b", "alice")
	require.NoError(t, s.Upsert(ctx, b))

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	ready, err := s.ListByState(ctx, store.StateReady)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, b.ID, ready[0].ID)

	counts, err := s.CountByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[store.StatePending])
	assert.Equal(t, int64(1), counts[store.StateReady])
}
