// Package runtime provides the Runtime interface for container backends.
package runtime

import (
	"context"
	"errors"
	"fmt"
)

// EntityLabel is set on every container the reconciler creates so that
// partial attempts and orphans can be found again by entity id.
const EntityLabel = "formplane.entity-id"

// Operation names used in errors and metrics.
const (
	OpCreate  = "create"
	OpStart   = "start"
	OpRename  = "rename"
	OpStop    = "stop"
	OpRemove  = "remove"
	OpInspect = "inspect"
	OpFind    = "find"
)

// Runtime is the capability set the reconciler needs from a container daemon.
// Implementations include Docker and an in-memory fake.
type Runtime interface {
	// CreateAndStart creates a container and starts it. It is not idempotent.
	// When the create succeeds but the start fails, the returned Container
	// carries the created ID alongside the error.
	CreateAndStart(ctx context.Context, spec Spec) (Container, error)

	Start(ctx context.Context, id string) error
	Rename(ctx context.Context, id, name string) error
	Stop(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	Inspect(ctx context.Context, id string) (Container, error)

	// FindByEntity returns every container labelled with entityID.
	FindByEntity(ctx context.Context, entityID string) ([]Container, error)

	Ping(ctx context.Context) error
}

// Spec contains the parameters for creating a container.
type Spec struct {
	Name   string
	Image  string
	Labels map[string]string
	Env    map[string]string
}

// Container is a snapshot of a container as the daemon reports it.
type Container struct {
	ID      string
	Name    string
	Image   string
	Running bool
	Labels  map[string]string
}

// EntityID returns the value of the entity label, if any.
func (c Container) EntityID() string {
	return c.Labels[EntityLabel]
}

// Kind classifies a runtime failure.
type Kind string

const (
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindUnavailable Kind = "unavailable"
	KindUnknown     Kind = "unknown"
)

// Error is returned by every Runtime operation that fails.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("runtime %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with an operation and kind.
func NewError(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// KindOf returns the classification of err. Errors that did not come from a
// Runtime are Unknown; a nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool    { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool    { return KindOf(err) == KindConflict }
func IsUnavailable(err error) bool { return KindOf(err) == KindUnavailable }
