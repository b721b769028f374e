package store

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when an entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a write targets a stale revision, reuses a
	// removed id, or collides with a unique attribute.
	ErrConflict = errors.New("entity conflict")
)

// EntityStore persists the desired state of entities.
// Every write is atomic per entity and guarded by the entity revision.
type EntityStore interface {
	// Upsert inserts e when its ID is unknown (revision 1) or replaces the
	// stored row when e.Revision matches the stored revision. On success
	// e.Revision and e.UpdatedAt reflect the written row.
	Upsert(ctx context.Context, e *Entity) error

	// Get returns the entity with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (*Entity, error)

	// List returns all live entities ordered by creation time.
	List(ctx context.Context) ([]Entity, error)

	// ListByState returns live entities in any of the given states.
	ListByState(ctx context.Context, states ...State) ([]Entity, error)

	// Delete removes the entity if its revision matches and tombstones the ID.
	Delete(ctx context.Context, id string, expectedRevision int64) error

	// IsRemoved reports whether the ID belonged to an entity that was deleted.
	IsRemoved(ctx context.Context, id string) (bool, error)

	// CountByState returns the number of live entities per state.
	CountByState(ctx context.Context) (map[State]int64, error)

	Ping(ctx context.Context) error
	Close() error
}
