package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"formplane/internal/runtime"
	"formplane/internal/store"
)

// maxSteps bounds the transitions one job may make.
const maxSteps = 16

// run is the state of one job while it is processed.
type run struct {
	engine *Engine
	job    Job
	logger *slog.Logger

	// ent is the record as last read or written by this job.
	ent *store.Entity

	// observed is set once the container has been inspected or acted on
	// during this job, so a resting ready entity is not inspected twice.
	observed bool

	attempts int
}

// reconcile steps the entity until it rests in ready, removed or failed.
func (r *run) reconcile(ctx context.Context) error {
	ent, err := r.engine.store.Get(ctx, r.job.EntityID)
	if errors.Is(err, store.ErrNotFound) {
		// Removed by an earlier job for the same entity.
		return nil
	}
	if err != nil {
		return fmt.Errorf("load entity: %w", err)
	}
	if ent.Revision > r.job.Revision && r.job.Revision > 0 {
		return errStale
	}
	r.ent = ent

	for step := 0; step < maxSteps; step++ {
		if r.ent.Deleting {
			return r.teardown(ctx)
		}

		var done bool
		switch r.ent.State {
		case store.StatePending:
			err = r.provision(ctx)
		case store.StateProvisioning:
			err = r.confirm(ctx)
		case store.StateReady:
			done, err = r.checkDrift(ctx)
		case store.StateUpdating:
			err = r.rename(ctx)
		case store.StateStopping:
			return r.teardown(ctx)
		case store.StateFailed:
			if !r.job.Redrive {
				return errAwaitingRedrive
			}
			r.ent.State = store.StatePending
			r.ent.SetError("")
			err = r.save(ctx)
		default:
			return fmt.Errorf("unknown state %q", r.ent.State)
		}
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
	return errNotConverged
}

// outcome classifies the error a job ended with, recording a failure on the
// entity when the retry budget is spent.
func (r *run) outcome(parent, jobCtx context.Context, err error) Phase {
	switch {
	case err == nil:
		return PhaseSucceeded
	case errors.Is(err, errSuperseded), errors.Is(err, errStale), errors.Is(err, errAwaitingRedrive):
		return PhaseAbandoned
	case parent.Err() != nil:
		// Shutting down; the next startup resync picks the entity up.
		return PhaseAbandoned
	case r.ent == nil:
		return PhaseAbandoned
	case jobCtx.Err() != nil:
		ctx, cancel := context.WithTimeout(context.WithoutCancel(jobCtx), 5*time.Second)
		defer cancel()
		return r.fail(ctx, fmt.Errorf("timed out after %s: %w", r.engine.config.JobTimeout, err))
	}

	var rerr *runtime.Error
	if errors.As(err, &rerr) || errors.Is(err, errNotConverged) {
		return r.fail(jobCtx, err)
	}

	// Store trouble: nothing can be recorded, the next resync retries.
	return PhaseAbandoned
}

// fail moves the entity to failed, forgetting its container.
func (r *run) fail(ctx context.Context, cause error) Phase {
	r.ent.State = store.StateFailed
	r.ent.ClearContainer()
	r.ent.SetError(cause.Error())
	if err := r.save(ctx); err != nil {
		if errors.Is(err, errSuperseded) {
			return PhaseAbandoned
		}
		r.logger.Error("failed to record failure", "cause", cause, "error", err)
	}
	return PhaseFailed
}

// provision creates the entity's container, adopting one left by an earlier
// attempt if the daemon already has it.
func (r *run) provision(ctx context.Context) error {
	var created runtime.Container
	name := r.ent.DesiredName

	for conflicts := 0; ; conflicts++ {
		err := r.call(ctx, runtime.OpCreate, func(ctx context.Context) error {
			found, err := r.engine.runtime.FindByEntity(ctx, r.ent.ID)
			if err != nil {
				return err
			}
			if len(found) > 0 {
				created = r.adopt(ctx, found)
				return nil
			}

			c, err := r.engine.runtime.CreateAndStart(ctx, r.spec(name))
			if err != nil {
				// A created but unstarted container is adopted on retry.
				return err
			}
			created = c
			return nil
		})
		if runtime.IsConflict(err) && conflicts < r.engine.config.Policy.NameConflictRetries {
			name = disambiguate(r.ent.DesiredName, conflicts+2)
			r.logger.Info("container name taken, trying another", "name", name)
			continue
		}
		if err != nil {
			return err
		}
		break
	}

	r.observed = true
	r.ent.State = store.StateProvisioning
	r.ent.SetContainer(created.ID, created.Name)
	r.ent.SetError("")
	return r.save(ctx)
}

// adopt keeps one of the entity's containers and removes the rest.
func (r *run) adopt(ctx context.Context, found []runtime.Container) runtime.Container {
	keep := found[0]
	for _, c := range found {
		if c.Running {
			keep = c
			break
		}
	}
	for _, c := range found {
		if c.ID == keep.ID {
			continue
		}
		if err := r.engine.runtime.Remove(ctx, c.ID); err != nil && !runtime.IsNotFound(err) {
			r.logger.Warn("failed to remove duplicate container", "container_id", c.ID, "error", err)
		}
	}
	r.logger.Info("adopted existing container", "container_id", keep.ID, "name", keep.Name)
	return keep
}

// confirm makes sure the provisioned container exists and is running.
func (r *run) confirm(ctx context.Context) error {
	c, err := r.inspect(ctx)
	if runtime.IsNotFound(err) {
		return r.lost(ctx)
	}
	if err != nil {
		return err
	}

	if !c.Running {
		err := r.call(ctx, runtime.OpStart, func(ctx context.Context) error {
			return r.engine.runtime.Start(ctx, c.ID)
		})
		if runtime.IsNotFound(err) {
			return r.lost(ctx)
		}
		if err != nil {
			return err
		}
	}

	r.ent.State = store.StateReady
	r.ent.SetContainer(c.ID, c.Name)
	return r.save(ctx)
}

// checkDrift compares a ready entity with its container. It reports done
// when nothing needs to change.
func (r *run) checkDrift(ctx context.Context) (bool, error) {
	if r.observed {
		if nameFits(r.ent.Name(), r.ent.DesiredName) {
			return true, nil
		}
		// The desired name changed while the container was provisioned.
		r.ent.State = store.StateUpdating
		return false, r.save(ctx)
	}

	c, err := r.inspect(ctx)
	if runtime.IsNotFound(err) {
		r.logger.Warn("container disappeared, re-provisioning", "container_id", r.ent.Ref())
		return false, r.lost(ctx)
	}
	if err != nil {
		return false, err
	}

	if !nameFits(c.Name, r.ent.DesiredName) {
		r.ent.State = store.StateUpdating
		r.ent.SetContainer(c.ID, c.Name)
		return false, r.save(ctx)
	}

	if !c.Running {
		r.logger.Info("container stopped, starting it", "container_id", c.ID)
		err := r.call(ctx, runtime.OpStart, func(ctx context.Context) error {
			return r.engine.runtime.Start(ctx, c.ID)
		})
		if runtime.IsNotFound(err) {
			return false, r.lost(ctx)
		}
		if err != nil {
			return false, err
		}
	}

	if c.Name != r.ent.Name() {
		r.ent.SetContainer(c.ID, c.Name)
		return true, r.save(ctx)
	}
	return true, nil
}

// rename moves the container to the desired name.
func (r *run) rename(ctx context.Context) error {
	ref := r.ent.Ref()
	name := r.ent.DesiredName

	for conflicts := 0; ; conflicts++ {
		if name == r.ent.Name() {
			break
		}
		err := r.call(ctx, runtime.OpRename, func(ctx context.Context) error {
			return r.engine.runtime.Rename(ctx, ref, name)
		})
		if runtime.IsNotFound(err) {
			r.logger.Warn("container disappeared during rename, re-provisioning", "container_id", ref)
			return r.lost(ctx)
		}
		if runtime.IsConflict(err) && conflicts < r.engine.config.Policy.NameConflictRetries {
			name = disambiguate(r.ent.DesiredName, conflicts+2)
			continue
		}
		if err != nil {
			return err
		}
		break
	}

	r.observed = true
	r.ent.State = store.StateReady
	r.ent.SetContainer(ref, name)
	return r.save(ctx)
}

// teardown stops and removes every container of a deleting entity, then
// deletes the record.
func (r *run) teardown(ctx context.Context) error {
	if ref := r.ent.Ref(); ref != "" {
		if r.ent.State != store.StateStopping {
			r.ent.State = store.StateStopping
			if err := r.save(ctx); err != nil {
				return err
			}
		}

		err := r.call(ctx, runtime.OpStop, func(ctx context.Context) error {
			return r.engine.runtime.Stop(ctx, ref)
		})
		if err != nil && !runtime.IsNotFound(err) {
			return err
		}

		err = r.call(ctx, runtime.OpRemove, func(ctx context.Context) error {
			return r.engine.runtime.Remove(ctx, ref)
		})
		if err != nil && !runtime.IsNotFound(err) {
			return err
		}
	}

	// Containers from abandoned attempts carry the entity label too.
	var leftovers []runtime.Container
	err := r.call(ctx, runtime.OpFind, func(ctx context.Context) error {
		var err error
		leftovers, err = r.engine.runtime.FindByEntity(ctx, r.ent.ID)
		return err
	})
	if err != nil {
		return err
	}
	for _, c := range leftovers {
		id := c.ID
		err := r.call(ctx, runtime.OpRemove, func(ctx context.Context) error {
			return r.engine.runtime.Remove(ctx, id)
		})
		if err != nil && !runtime.IsNotFound(err) {
			return err
		}
	}

	if err := r.engine.store.Delete(ctx, r.ent.ID, r.ent.Revision); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return errSuperseded
		}
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete entity: %w", err)
	}
	r.logger.Info("entity removed")
	return nil
}

// lost handles a container that vanished: the entity goes back to pending
// and the next step provisions a new one.
func (r *run) lost(ctx context.Context) error {
	r.ent.State = store.StatePending
	r.ent.ClearContainer()
	r.observed = false
	return r.save(ctx)
}

func (r *run) inspect(ctx context.Context) (runtime.Container, error) {
	var c runtime.Container
	err := r.call(ctx, runtime.OpInspect, func(ctx context.Context) error {
		var err error
		c, err = r.engine.runtime.Inspect(ctx, r.ent.Ref())
		return err
	})
	if err == nil {
		r.observed = true
	}
	return c, err
}

// call runs fn, retrying while the daemon is unavailable or the failure is
// unclassified. NotFound and Conflict are returned to the caller at once.
// Before every retry the stored revision is checked and the job abandoned
// if a newer intent has been accepted.
func (r *run) call(ctx context.Context, op string, fn func(context.Context) error) error {
	policy := r.engine.config.Policy
	b := policy.newBackOff()
	unavailable, unknown := 0, 0

	for {
		r.attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}

		kind := runtime.KindOf(err)
		r.engine.metrics.runtimeError(ctx, op, kind)

		switch kind {
		case runtime.KindUnavailable:
			unavailable++
			if unavailable > policy.UnavailableRetries {
				return err
			}
		case runtime.KindUnknown:
			unknown++
			if unknown >= policy.MaxAttempts {
				return err
			}
		default:
			return err
		}

		delay := b.NextBackOff()
		r.logger.Warn("runtime call failed, retrying",
			"op", op,
			"kind", kind,
			"delay", delay,
			"error", err,
		)
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
		if cerr := r.checkCurrent(ctx); cerr != nil {
			return cerr
		}
	}
}

// checkCurrent abandons the job when the stored revision moved on.
func (r *run) checkCurrent(ctx context.Context) error {
	current, err := r.engine.store.Get(ctx, r.ent.ID)
	if errors.Is(err, store.ErrNotFound) {
		return errSuperseded
	}
	if err != nil {
		return fmt.Errorf("reload entity: %w", err)
	}
	if current.Revision != r.ent.Revision {
		return errSuperseded
	}
	return nil
}

// save writes r.ent with a compare-and-swap on the revision last observed.
func (r *run) save(ctx context.Context) error {
	next := r.ent.Clone()
	if err := r.engine.store.Upsert(ctx, next); err != nil {
		if errors.Is(err, store.ErrConflict) || errors.Is(err, store.ErrNotFound) {
			return errSuperseded
		}
		return fmt.Errorf("save entity: %w", err)
	}
	r.ent = next
	r.logger.Debug("entity saved", "state", next.State, "revision", next.Revision)
	return nil
}

func (r *run) spec(name string) runtime.Spec {
	return runtime.Spec{
		Name:  name,
		Image: r.engine.config.Image,
		Labels: map[string]string{
			runtime.EntityLabel: r.ent.ID,
		},
		Env: map[string]string{
			"FORMPLANE_ENTITY_ID": r.ent.ID,
		},
	}
}

// disambiguate returns name-n.
func disambiguate(name string, n int) string {
	return name + "-" + strconv.Itoa(n)
}

// nameFits reports whether actual is desired or a disambiguated form of it.
func nameFits(actual, desired string) bool {
	if actual == desired {
		return true
	}
	suffix, ok := strings.CutPrefix(actual, desired+"-")
	if !ok {
		return false
	}
	n, err := strconv.Atoi(suffix)
	return err == nil && n >= 2
}
