// Package fake provides an in-memory runtime.Runtime with fault injection.
// It backs tests and local runs without a Docker daemon.
package fake

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"formplane/internal/runtime"
)

// Runtime is an in-memory container daemon.
type Runtime struct {
	mu         sync.Mutex
	seq        int
	containers map[string]*runtime.Container
	before     map[string][]error
	after      map[string][]error
	calls      map[string]int
}

var _ runtime.Runtime = (*Runtime)(nil)

// New returns an empty fake runtime.
func New() *Runtime {
	return &Runtime{
		containers: make(map[string]*runtime.Container),
		before:     make(map[string][]error),
		after:      make(map[string][]error),
		calls:      make(map[string]int),
	}
}

// FailNext makes the next len(errs) calls of op fail without side effects.
// Plain errors are wrapped as runtime errors of KindUnknown; pass a
// *runtime.Error to choose the kind.
func (r *Runtime) FailNext(op string, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.before[op] = append(r.before[op], errs...)
}

// DropReply makes the next len(errs) calls of op take effect but report
// failure, as when the daemon times out after acting.
func (r *Runtime) DropReply(op string, errs ...error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.after[op] = append(r.after[op], errs...)
}

// Unavailable returns n daemon-unreachable errors for op.
func Unavailable(op string, n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = runtime.NewError(op, runtime.KindUnavailable, errors.New("connection refused"))
	}
	return errs
}

// Calls returns how many times op was invoked.
func (r *Runtime) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// Containers returns every container, sorted by id.
func (r *Runtime) Containers() []runtime.Container {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]runtime.Container, 0, len(r.containers))
	for _, c := range r.containers {
		out = append(out, copyContainer(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a container without counting as an Inspect call.
func (r *Runtime) Get(id string) (runtime.Container, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.containers[id]
	if !ok {
		return runtime.Container{}, false
	}
	return copyContainer(c), true
}

// Kill removes a container behind the reconciler's back.
func (r *Runtime) Kill(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.containers, id)
}

// Seed adds a container directly, for example one left by an earlier process.
func (r *Runtime) Seed(c runtime.Container) runtime.Container {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == "" {
		r.seq++
		c.ID = fmt.Sprintf("c%04d", r.seq)
	}
	stored := copyContainer(&c)
	r.containers[c.ID] = &stored
	return c
}

func (r *Runtime) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *Runtime) CreateAndStart(ctx context.Context, spec runtime.Spec) (runtime.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(ctx, runtime.OpCreate); err != nil {
		return runtime.Container{}, err
	}
	if _, taken := r.byName(spec.Name); taken {
		return runtime.Container{}, runtime.NewError(runtime.OpCreate, runtime.KindConflict,
			fmt.Errorf("container name %q is already in use", spec.Name))
	}

	r.seq++
	c := &runtime.Container{
		ID:     fmt.Sprintf("c%04d", r.seq),
		Name:   spec.Name,
		Image:  spec.Image,
		Labels: copyLabels(spec.Labels),
	}
	r.containers[c.ID] = c
	if err := r.leave(runtime.OpCreate); err != nil {
		return runtime.Container{}, err
	}

	// A start fault leaves the created container behind, like the daemon does.
	if err := r.enter(ctx, runtime.OpStart); err != nil {
		return copyContainer(c), err
	}
	c.Running = true
	return copyContainer(c), r.leave(runtime.OpStart)
}

func (r *Runtime) Start(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(ctx, runtime.OpStart); err != nil {
		return err
	}
	c, err := r.lookup(runtime.OpStart, id)
	if err != nil {
		return err
	}
	c.Running = true
	return r.leave(runtime.OpStart)
}

func (r *Runtime) Rename(ctx context.Context, id, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(ctx, runtime.OpRename); err != nil {
		return err
	}
	c, err := r.lookup(runtime.OpRename, id)
	if err != nil {
		return err
	}
	if other, taken := r.byName(name); taken && other.ID != id {
		return runtime.NewError(runtime.OpRename, runtime.KindConflict,
			fmt.Errorf("container name %q is already in use", name))
	}
	c.Name = name
	return r.leave(runtime.OpRename)
}

func (r *Runtime) Stop(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(ctx, runtime.OpStop); err != nil {
		return err
	}
	c, err := r.lookup(runtime.OpStop, id)
	if err != nil {
		return err
	}
	c.Running = false
	return r.leave(runtime.OpStop)
}

func (r *Runtime) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(ctx, runtime.OpRemove); err != nil {
		return err
	}
	if _, err := r.lookup(runtime.OpRemove, id); err != nil {
		return err
	}
	delete(r.containers, id)
	return r.leave(runtime.OpRemove)
}

func (r *Runtime) Inspect(ctx context.Context, id string) (runtime.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(ctx, runtime.OpInspect); err != nil {
		return runtime.Container{}, err
	}
	c, err := r.lookup(runtime.OpInspect, id)
	if err != nil {
		return runtime.Container{}, err
	}
	return copyContainer(c), r.leave(runtime.OpInspect)
}

func (r *Runtime) FindByEntity(ctx context.Context, entityID string) ([]runtime.Container, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.enter(ctx, runtime.OpFind); err != nil {
		return nil, err
	}
	var out []runtime.Container
	for _, c := range r.containers {
		if c.EntityID() == entityID {
			out = append(out, copyContainer(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, r.leave(runtime.OpFind)
}

// enter counts the call and pops a pre-effect fault. r.mu must be held.
func (r *Runtime) enter(ctx context.Context, op string) error {
	r.calls[op]++
	if err := ctx.Err(); err != nil {
		return runtime.NewError(op, runtime.KindUnavailable, err)
	}
	return pop(r.before, op)
}

// leave pops a post-effect fault. r.mu must be held.
func (r *Runtime) leave(op string) error {
	return pop(r.after, op)
}

func (r *Runtime) lookup(op, id string) (*runtime.Container, error) {
	c, ok := r.containers[id]
	if !ok {
		return nil, runtime.NewError(op, runtime.KindNotFound, fmt.Errorf("no such container: %s", id))
	}
	return c, nil
}

func (r *Runtime) byName(name string) (*runtime.Container, bool) {
	for _, c := range r.containers {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

func pop(faults map[string][]error, op string) error {
	queue := faults[op]
	if len(queue) == 0 {
		return nil
	}
	err := queue[0]
	faults[op] = queue[1:]

	var rerr *runtime.Error
	if errors.As(err, &rerr) {
		return err
	}
	return runtime.NewError(op, runtime.KindUnknown, err)
}

func copyContainer(c *runtime.Container) runtime.Container {
	out := *c
	out.Labels = copyLabels(c.Labels)
	return out
}

func copyLabels(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
