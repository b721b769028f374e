// Package sqlite implements store.EntityStore on an embedded SQLite database.
// It suits single-node deployments where running Postgres is not worth it.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"formplane/internal/store"

	"github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store provides SQLite-backed entity persistence.
type Store struct {
	db *sql.DB
}

var _ store.EntityStore = (*Store)(nil)

// Open creates or opens the database at path and applies the schema.
// Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite has a single writer; one connection also keeps every
	// compare-and-swap below strictly serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const selectColumns = `id, name, email, age, gender, address, desired_name,
	container_ref, container_name, state, deleting, revision, last_error,
	created_at, updated_at`

func (s *Store) Upsert(ctx context.Context, e *store.Entity) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	if e.Revision == 0 {
		var tombstoned int
		err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM removed_entities WHERE id = ?", e.ID).Scan(&tombstoned)
		if err != nil {
			return err
		}
		if tombstoned > 0 {
			return store.ErrConflict
		}

		createdAt := e.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entities (id, name, email, age, gender, address, desired_name,
				container_ref, container_name, state, deleting, revision, last_error,
				created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`,
			e.ID, e.Attributes.Name, e.Attributes.Email, e.Attributes.Age,
			e.Attributes.Gender, e.Attributes.Address, e.DesiredName,
			e.ContainerRef, e.ContainerName, e.State, e.Deleting, e.LastError,
			createdAt, now,
		)
		if err != nil {
			return mapError(err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		e.CreatedAt = createdAt
		e.UpdatedAt = now
		e.Revision = 1
		return nil
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE entities
		SET name = ?, email = ?, age = ?, gender = ?, address = ?, desired_name = ?,
			container_ref = ?, container_name = ?, state = ?, deleting = ?,
			last_error = ?, updated_at = ?, revision = revision + 1
		WHERE id = ? AND revision = ?`,
		e.Attributes.Name, e.Attributes.Email, e.Attributes.Age, e.Attributes.Gender,
		e.Attributes.Address, e.DesiredName, e.ContainerRef, e.ContainerName,
		e.State, e.Deleting, e.LastError, now, e.ID, e.Revision,
	)
	if err != nil {
		return mapError(err)
	}
	if err := expectOneRow(ctx, tx, res, e.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.UpdatedAt = now
	e.Revision++
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*store.Entity, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM entities WHERE id = ?", id)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return e, err
}

func (s *Store) List(ctx context.Context) ([]store.Entity, error) {
	return s.ListByState(ctx)
}

func (s *Store) ListByState(ctx context.Context, states ...store.State) ([]store.Entity, error) {
	query := "SELECT " + selectColumns + " FROM entities"
	args := make([]any, 0, len(states))
	if len(states) > 0 {
		placeholders := make([]string, len(states))
		for i, st := range states {
			placeholders[i] = "?"
			args = append(args, st)
		}
		query += " WHERE state IN (" + strings.Join(placeholders, ", ") + ")"
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string, expectedRevision int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE id = ? AND revision = ?", id, expectedRevision)
	if err != nil {
		return err
	}
	if err := expectOneRow(ctx, tx, res, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO removed_entities (id, removed_at) VALUES (?, ?)", id, time.Now().UTC(),
	); err != nil {
		return mapError(err)
	}
	return tx.Commit()
}

func (s *Store) IsRemoved(ctx context.Context, id string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM removed_entities WHERE id = ?", id).Scan(&n)
	return n > 0, err
}

func (s *Store) CountByState(ctx context.Context) (map[store.State]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(*) FROM entities GROUP BY state")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[store.State]int64)
	for rows.Next() {
		var st store.State
		var n int64
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, rows.Err()
}

// expectOneRow turns a zero-row compare-and-swap into ErrNotFound or
// ErrConflict depending on whether the row still exists.
func expectOneRow(ctx context.Context, tx *sql.Tx, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	var exists int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities WHERE id = ?", id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return store.ErrNotFound
	}
	return store.ErrConflict
}

func mapError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*store.Entity, error) {
	var (
		e             store.Entity
		containerRef  sql.NullString
		containerName sql.NullString
		lastError     sql.NullString
	)
	err := row.Scan(
		&e.ID, &e.Attributes.Name, &e.Attributes.Email, &e.Attributes.Age,
		&e.Attributes.Gender, &e.Attributes.Address, &e.DesiredName,
		&containerRef, &containerName, &e.State, &e.Deleting, &e.Revision,
		&lastError, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
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
