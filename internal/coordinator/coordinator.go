// Package coordinator turns create, update and delete intents into persisted
// records and reconciliation jobs.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"formplane/internal/logger"
	"formplane/internal/reconciler"
	"formplane/internal/store"

	"github.com/google/uuid"
)

// deleteAttempts bounds how often SubmitDelete re-reads the record after
// losing a compare-and-swap to the engine.
const deleteAttempts = 5

// Engine is the part of the reconciler the coordinator talks to.
type Engine interface {
	Enqueue(ctx context.Context, job reconciler.Job)
	Status(entityID string) (reconciler.JobStatus, bool)
}

// Coordinator validates intents, persists them and schedules reconciliation.
// It never waits for the runtime.
type Coordinator struct {
	store  store.EntityStore
	engine Engine
	logger *slog.Logger
	newID  func() string
}

// New creates a coordinator.
func New(st store.EntityStore, engine Engine, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		store:  st,
		engine: engine,
		logger: log.With("component", "coordinator"),
		newID:  uuid.NewString,
	}
}

// Status is what the status endpoint reports for an entity.
type Status struct {
	EntityID      string
	State         store.State
	Deleting      bool
	Revision      int64
	ContainerRef  *string
	ContainerName *string
	LastError     *string
	Job           *reconciler.JobStatus
}

// SubmitCreate persists a new pending entity and schedules its provisioning.
func (c *Coordinator) SubmitCreate(ctx context.Context, attrs store.Attributes) (*store.Entity, error) {
	attrs = normalize(attrs)
	if err := validate(attrs); err != nil {
		return nil, err
	}

	ent := &store.Entity{
		ID:          c.newID(),
		Attributes:  attrs,
		DesiredName: SanitizeName(attrs.Name),
		State:       store.StatePending,
	}
	if err := c.store.Upsert(ctx, ent); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to persist entity: %w", err)
	}

	c.engine.Enqueue(ctx, reconciler.Job{
		EntityID: ent.ID,
		Target:   reconciler.TargetReady,
		Revision: ent.Revision,
	})

	logger.FromContext(ctx, c.logger).Info("entity created",
		"entity_id", ent.ID,
		"desired_name", ent.DesiredName,
	)
	return ent, nil
}

// SubmitUpdate replaces the attributes of an entity whose revision is
// expectedRevision. An empty email keeps the stored one.
//
// Identical attributes return the current entity without a write, so the
// revision stays available to a concurrent update that changes something.
func (c *Coordinator) SubmitUpdate(ctx context.Context, id string, attrs store.Attributes, expectedRevision int64) (*store.Entity, error) {
	current, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Revision != expectedRevision {
		return nil, ErrStaleRevision
	}
	if current.Deleting {
		return nil, ErrDeleting
	}

	attrs = normalize(attrs)
	if attrs.Email == "" {
		attrs.Email = current.Attributes.Email
	}
	if err := validate(attrs); err != nil {
		return nil, err
	}
	if attrs == current.Attributes {
		return current, nil
	}

	next := current.Clone()
	next.Attributes = attrs
	next.DesiredName = SanitizeName(attrs.Name)

	redrive := false
	switch current.State {
	case store.StateReady:
		next.State = store.StateUpdating
	case store.StateFailed:
		next.State = store.StatePending
		next.SetError("")
		redrive = true
	}

	if err := c.store.Upsert(ctx, next); err != nil {
		return nil, c.explainConflict(ctx, id, expectedRevision, err)
	}

	c.engine.Enqueue(ctx, reconciler.Job{
		EntityID: id,
		Target:   reconciler.TargetUpdated,
		Revision: next.Revision,
		Redrive:  redrive,
	})

	logger.FromContext(ctx, c.logger).Info("entity updated",
		"entity_id", id,
		"revision", next.Revision,
		"state", next.State,
	)
	return next, nil
}

// explainConflict tells a lost race from a duplicate email.
func (c *Coordinator) explainConflict(ctx context.Context, id string, expectedRevision int64, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	if !errors.Is(err, store.ErrConflict) {
		return fmt.Errorf("failed to persist entity: %w", err)
	}
	latest, gerr := c.store.Get(ctx, id)
	if gerr != nil {
		return gerr
	}
	if latest.Revision != expectedRevision {
		return ErrStaleRevision
	}
	return ErrDuplicateEmail
}

// SubmitDelete marks an entity for removal. Deleting an entity that is
// already deleting or removed succeeds.
func (c *Coordinator) SubmitDelete(ctx context.Context, id string) (*store.Entity, error) {
	for attempt := 0; attempt < deleteAttempts; attempt++ {
		current, err := c.store.Get(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return c.removedSnapshot(ctx, id)
		}
		if err != nil {
			return nil, err
		}

		if current.Deleting {
			c.enqueueRemoval(ctx, current)
			return current, nil
		}

		next := current.Clone()
		next.Deleting = true
		if next.ContainerRef != nil {
			next.State = store.StateStopping
		}

		err = c.store.Upsert(ctx, next)
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			// The engine wrote in between; look again.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to persist entity: %w", err)
		}

		c.enqueueRemoval(ctx, next)
		logger.FromContext(ctx, c.logger).Info("entity deletion requested",
			"entity_id", id,
			"state", next.State,
		)
		return next, nil
	}
	return nil, ErrBusy
}

func (c *Coordinator) enqueueRemoval(ctx context.Context, ent *store.Entity) {
	c.engine.Enqueue(ctx, reconciler.Job{
		EntityID: ent.ID,
		Target:   reconciler.TargetRemoved,
		Revision: ent.Revision,
	})
}

// removedSnapshot answers for an id that has no live record.
func (c *Coordinator) removedSnapshot(ctx context.Context, id string) (*store.Entity, error) {
	removed, err := c.store.IsRemoved(ctx, id)
	if err != nil {
		return nil, err
	}
	if !removed {
		return nil, store.ErrNotFound
	}
	return &store.Entity{ID: id, State: store.StateRemoved}, nil
}

// Retry re-drives a failed entity.
func (c *Coordinator) Retry(ctx context.Context, id string) (*store.Entity, error) {
	current, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.State != store.StateFailed {
		return nil, ErrNotFailed
	}

	next := current.Clone()
	next.State = store.StatePending
	next.SetError("")
	if err := c.store.Upsert(ctx, next); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, ErrStaleRevision
		}
		return nil, err
	}

	target := reconciler.TargetReady
	if next.Deleting {
		target = reconciler.TargetRemoved
	}
	c.engine.Enqueue(ctx, reconciler.Job{
		EntityID: id,
		Target:   target,
		Revision: next.Revision,
		Redrive:  true,
	})

	logger.FromContext(ctx, c.logger).Info("entity re-driven", "entity_id", id)
	return next, nil
}

// GetStatus returns the lifecycle state of an entity, including removed ones.
func (c *Coordinator) GetStatus(ctx context.Context, id string) (*Status, error) {
	ent, err := c.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		ent, err = c.removedSnapshot(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	status := &Status{
		EntityID:      ent.ID,
		State:         ent.State,
		Deleting:      ent.Deleting,
		Revision:      ent.Revision,
		ContainerRef:  ent.ContainerRef,
		ContainerName: ent.ContainerName,
		LastError:     ent.LastError,
	}
	if job, ok := c.engine.Status(id); ok {
		status.Job = &job
	}
	return status, nil
}

// Get returns the current snapshot of an entity.
func (c *Coordinator) Get(ctx context.Context, id string) (*store.Entity, error) {
	return c.store.Get(ctx, id)
}

// List returns all live entities.
func (c *Coordinator) List(ctx context.Context) ([]store.Entity, error) {
	return c.store.List(ctx)
}
