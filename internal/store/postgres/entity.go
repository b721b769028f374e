package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"formplane/internal/store"

	"github.com/lib/pq"
)

const selectColumns = `id, name, email, age, gender, address, desired_name,
	container_ref, container_name, state, deleting, revision, last_error,
	created_at, updated_at`

// Upsert inserts a new entity (Revision 0) or performs a compare-and-swap
// on the stored revision.
func (s *Store) Upsert(ctx context.Context, e *store.Entity) error {
	now := time.Now().UTC()

	if e.Revision == 0 {
		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}

		// The NOT EXISTS guard keeps tombstoned ids from coming back.
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO entities (id, name, email, age, gender, address, desired_name,
				container_ref, container_name, state, deleting, revision, last_error,
				created_at, updated_at)
			SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1, $12, $13, $14
			WHERE NOT EXISTS (SELECT 1 FROM removed_entities WHERE id = $1)
		`,
			e.ID, e.Attributes.Name, e.Attributes.Email, e.Attributes.Age,
			e.Attributes.Gender, e.Attributes.Address, e.DesiredName,
			e.ContainerRef, e.ContainerName, e.State, e.Deleting, e.LastError,
			createdAt, now,
		)
		if err != nil {
			return mapError(err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return store.ErrConflict
		}

		e.CreatedAt = createdAt
		e.UpdatedAt = now
		e.Revision = 1
		return nil
	}

	var newRevision int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE entities
		SET name = $1, email = $2, age = $3, gender = $4, address = $5,
			desired_name = $6, container_ref = $7, container_name = $8, state = $9,
			deleting = $10, last_error = $11, updated_at = $12, revision = revision + 1
		WHERE id = $13 AND revision = $14
		RETURNING revision
	`,
		e.Attributes.Name, e.Attributes.Email, e.Attributes.Age, e.Attributes.Gender,
		e.Attributes.Address, e.DesiredName, e.ContainerRef, e.ContainerName,
		e.State, e.Deleting, e.LastError, now, e.ID, e.Revision,
	).Scan(&newRevision)
	if errors.Is(err, sql.ErrNoRows) {
		return s.missOrConflict(ctx, s.db, e.ID)
	}
	if err != nil {
		return mapError(err)
	}

	e.UpdatedAt = now
	e.Revision = newRevision
	return nil
}

// Get returns a single entity.
func (s *Store) Get(ctx context.Context, id string) (*store.Entity, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM entities WHERE id = $1", id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entity %s: %w", id, err)
	}
	return e, nil
}

// List returns all live entities, oldest first.
func (s *Store) List(ctx context.Context) ([]store.Entity, error) {
	return s.ListByState(ctx)
}

// ListByState returns live entities in any of states; all of them if states is empty.
func (s *Store) ListByState(ctx context.Context, states ...store.State) ([]store.Entity, error) {
	query := "SELECT " + selectColumns + " FROM entities"
	var args []interface{}
	if len(states) > 0 {
		names := make([]string, len(states))
		for i, st := range states {
			names[i] = string(st)
		}
		query += " WHERE state = ANY($1)"
		args = append(args, pq.Array(names))
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}
	defer rows.Close()

	var entities []store.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, *e)
	}
	return entities, rows.Err()
}

// Delete removes the row and tombstones the id in one transaction.
func (s *Store) Delete(ctx context.Context, id string, expectedRevision int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE id = $1 AND revision = $2", id, expectedRevision)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return s.missOrConflict(ctx, tx, id)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO removed_entities (id, removed_at) VALUES ($1, NOW()) ON CONFLICT (id) DO NOTHING", id,
	); err != nil {
		return fmt.Errorf("failed to tombstone entity %s: %w", id, err)
	}

	return tx.Commit()
}

// IsRemoved reports whether id has been tombstoned.
func (s *Store) IsRemoved(ctx context.Context, id string) (bool, error) {
	var removed bool
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM removed_entities WHERE id = $1)", id,
	).Scan(&removed)
	return removed, err
}

// CountByState backs the entities-by-state gauge.
func (s *Store) CountByState(ctx context.Context) (map[store.State]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM entities GROUP BY state")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[store.State]int64)
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return nil, err
		}
		counts[store.State(state)] = n
	}
	return counts, rows.Err()
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// missOrConflict explains why a compare-and-swap touched no rows.
func (s *Store) missOrConflict(ctx context.Context, q queryRower, id string) error {
	var exists bool
	if err := q.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM entities WHERE id = $1)", id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

// mapError converts unique and check violations to store.ErrConflict.
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "23514":
			return fmt.Errorf("%w: %s", store.ErrConflict, pqErr.Message)
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEntity(row rowScanner) (*store.Entity, error) {
	var (
		e             store.Entity
		state         string
		containerRef  sql.NullString
		containerName sql.NullString
		lastError     sql.NullString
	)
	if err := row.Scan(
		&e.ID, &e.Attributes.Name, &e.Attributes.Email, &e.Attributes.Age,
		&e.Attributes.Gender, &e.Attributes.Address, &e.DesiredName,
		&containerRef, &containerName, &state, &e.Deleting, &e.Revision,
		&lastError, &e.CreatedAt, &e.UpdatedAt,
	); err != nil {
		return nil, err
	}
	e.State = store.State(state)
	if containerRef.Valid {
		e.ContainerRef = &containerRef.String
	}
	if containerName.Valid {
		e.ContainerName = &containerName.String
	}
	if lastError.Valid {
		e.LastError = &lastError.String
	}
	return &e, nil
}
