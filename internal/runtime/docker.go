package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// DockerRuntime implements the Runtime interface using the Docker SDK.
type DockerRuntime struct {
	client      *client.Client
	stopTimeout int
}

var _ Runtime = (*DockerRuntime)(nil)

// NewDockerRuntime creates a new Docker-based runtime. stopTimeout is how
// long Stop waits for a graceful exit before the daemon kills the container.
func NewDockerRuntime(stopTimeout time.Duration) (*DockerRuntime, error) {
	// Initializes client from standard environment variables (DOCKER_HOST, etc.)
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}
	return &DockerRuntime{client: cli, stopTimeout: int(stopTimeout.Seconds())}, nil
}

// Close releases the client's idle connections.
func (d *DockerRuntime) Close() error {
	return d.client.Close()
}

// Ping checks that the daemon is reachable.
func (d *DockerRuntime) Ping(ctx context.Context) error {
	if _, err := d.client.Ping(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// CreateAndStart implements Runtime.CreateAndStart using Docker containers.
func (d *DockerRuntime) CreateAndStart(ctx context.Context, spec Spec) (Container, error) {
	if err := d.ensureImage(ctx, spec.Image); err != nil {
		return Container{}, err
	}

	containerConfig := &container.Config{
		Image:     spec.Image,
		Env:       envList(spec.Env),
		Labels:    spec.Labels,
		Tty:       true,
		OpenStdin: true,
	}
	hostConfig := &container.HostConfig{AutoRemove: false}

	resp, err := d.client.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return Container{}, classify(OpCreate, err)
	}

	created := Container{
		ID:     resp.ID,
		Name:   spec.Name,
		Image:  spec.Image,
		Labels: spec.Labels,
	}
	if err := d.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return created, classify(OpStart, err)
	}
	created.Running = true
	return created, nil
}

// ensureImage pulls the image unless it is already present locally.
func (d *DockerRuntime) ensureImage(ctx context.Context, ref string) error {
	if _, err := d.client.ImageInspect(ctx, ref); err == nil {
		return nil
	} else if !errdefs.IsNotFound(err) {
		return classify("image_inspect", err)
	}

	reader, err := d.client.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return classify("image_pull", fmt.Errorf("failed to pull image %s: %w", ref, err))
	}
	defer reader.Close()

	// The pull only completes once the progress stream is drained.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return classify("image_pull", err)
	}
	return nil
}

func (d *DockerRuntime) Start(ctx context.Context, id string) error {
	if err := d.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return classify(OpStart, err)
	}
	return nil
}

func (d *DockerRuntime) Rename(ctx context.Context, id, name string) error {
	if err := d.client.ContainerRename(ctx, id, name); err != nil {
		return classify(OpRename, err)
	}
	return nil
}

func (d *DockerRuntime) Stop(ctx context.Context, id string) error {
	timeout := d.stopTimeout
	if err := d.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}); err != nil {
		return classify(OpStop, err)
	}
	return nil
}

func (d *DockerRuntime) Remove(ctx context.Context, id string) error {
	if err := d.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}); err != nil {
		return classify(OpRemove, err)
	}
	return nil
}

// Inspect returns the current state of a container.
func (d *DockerRuntime) Inspect(ctx context.Context, id string) (Container, error) {
	info, err := d.client.ContainerInspect(ctx, id)
	if err != nil {
		return Container{}, classify(OpInspect, err)
	}
	if info.ContainerJSONBase == nil {
		return Container{}, NewError(OpInspect, KindUnknown, errors.New("daemon returned an empty container"))
	}

	c := Container{
		ID:   info.ID,
		Name: strings.TrimPrefix(info.Name, "/"),
	}
	if info.State != nil {
		c.Running = info.State.Running
	}
	if info.Config != nil {
		c.Image = info.Config.Image
		c.Labels = info.Config.Labels
	}
	return c, nil
}

func (d *DockerRuntime) FindByEntity(ctx context.Context, entityID string) ([]Container, error) {
	list, err := d.client.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: entityFilter(entityID),
	})
	if err != nil {
		return nil, classify(OpFind, err)
	}

	containers := make([]Container, 0, len(list))
	for _, s := range list {
		c := Container{
			ID:      s.ID,
			Image:   s.Image,
			Running: s.State == "running",
			Labels:  s.Labels,
		}
		if len(s.Names) > 0 {
			c.Name = strings.TrimPrefix(s.Names[0], "/")
		}
		containers = append(containers, c)
	}
	return containers, nil
}

func entityFilter(entityID string) filters.Args {
	return filters.NewArgs(filters.Arg("label", EntityLabel+"="+entityID))
}

// classify maps Docker SDK errors onto runtime error kinds.
func classify(op string, err error) error {
	var kind Kind
	switch {
	case errdefs.IsNotFound(err):
		kind = KindNotFound
	case errdefs.IsConflict(err):
		kind = KindConflict
	case client.IsErrConnectionFailed(err),
		errdefs.IsUnavailable(err),
		errdefs.IsDeadline(err),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		kind = KindUnavailable
	default:
		kind = KindUnknown
	}
	return NewError(op, kind, err)
}

func envList(m map[string]string) []string {
	env := make([]string, 0, len(m))
	for k, v := range m {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(env)
	return env
}
