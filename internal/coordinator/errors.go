package coordinator

import (
	"fmt"

	"formplane/internal/store"
)

var (
	// ErrStaleRevision is returned when the caller's expected revision is
	// not the stored one.
	ErrStaleRevision = fmt.Errorf("%w: expected revision is stale", store.ErrConflict)

	// ErrDeleting is returned for updates to an entity that is being deleted.
	ErrDeleting = fmt.Errorf("%w: entity is being deleted", store.ErrConflict)

	// ErrDuplicateEmail is returned when another live entity has the email.
	ErrDuplicateEmail = fmt.Errorf("%w: email is already registered", store.ErrConflict)

	// ErrNotFailed is returned when a retry targets an entity that has not failed.
	ErrNotFailed = fmt.Errorf("%w: entity has not failed", store.ErrConflict)

	// ErrBusy is returned when a delete keeps losing the race with the engine.
	ErrBusy = fmt.Errorf("%w: entity is changing too quickly, try again", store.ErrConflict)
)

// ValidationError reports an invalid intent. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}
