package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

func TestClassify(t *testing.T) {
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"not found", errdefs.NotFound(base), KindNotFound},
		{"conflict", errdefs.Conflict(base), KindConflict},
		{"unavailable", errdefs.Unavailable(base), KindUnavailable},
		{"deadline", errdefs.Deadline(base), KindUnavailable},
		{"context deadline", fmt.Errorf("request: %w", context.DeadlineExceeded), KindUnavailable},
		{"system", errdefs.System(base), KindUnknown},
		{"plain", base, KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(OpCreate, tt.err)
			if got := KindOf(err); got != tt.want {
				t.Errorf("expected kind %s, got %s", tt.want, got)
			}
			if !errors.Is(err, base) && !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected classified error to wrap the cause, got %v", err)
			}
		})
	}
}

func TestEntityFilter(t *testing.T) {
	f := entityFilter("e1")
	got := f.Get("label")
	want := []string{EntityLabel + "=e1"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected label filter %v, got %v", want, got)
	}
}

func TestEnvList_Sorted(t *testing.T) {
	got := envList(map[string]string{"B": "2", "A": "1"})
	want := []string{"A=1", "B=2"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(nil) != "" {
		t.Error("nil error should have no kind")
	}
	if KindOf(errors.New("x")) != KindUnknown {
		t.Error("foreign errors should be unknown")
	}

	wrapped := fmt.Errorf("step: %w", NewError(OpRename, KindNotFound, errors.New("gone")))
	if !IsNotFound(wrapped) {
		t.Error("expected wrapped runtime error to be classified as not found")
	}
	if IsConflict(wrapped) || IsUnavailable(wrapped) {
		t.Error("classification helpers should be exclusive")
	}
}

// newTestDocker points a DockerRuntime at a fake daemon API.
func newTestDocker(t *testing.T, handler http.Handler) *DockerRuntime {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cli, err := client.NewClientWithOpts(
		client.WithHost("tcp://"+strings.TrimPrefix(srv.URL, "http://")),
		client.WithHTTPClient(srv.Client()),
	)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() { cli.Close() })
	return &DockerRuntime{client: cli, stopTimeout: 1}
}

func TestDockerRuntime_Inspect(t *testing.T) {
	var hits atomic.Int32
	running := atomic.Bool{}
	running.Store(true)

	d := newTestDocker(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/containers/c1/json"):
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprintf(w, `{"Id":"c1","Name":"/alice","State":{"Running":%t},"Config":{"Image":"nginx:alpine","Labels":{%q:"e1"}}}`,
				running.Load(), EntityLabel)
		case strings.HasSuffix(r.URL.Path, "/containers/gone/json"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"message":"No such container: gone"}`))
		default:
			http.NotFound(w, r)
		}
	}))

	ctx := context.Background()

	c, err := d.Inspect(ctx, "c1")
	if err != nil {
		t.Fatalf("Inspect failed: %v", err)
	}
	if c.ID != "c1" || c.Name != "alice" || !c.Running || c.Image != "nginx:alpine" || c.Labels[EntityLabel] != "e1" {
		t.Errorf("unexpected container: %+v", c)
	}

	// Each call reads the daemon's current state.
	running.Store(false)
	c, err = d.Inspect(ctx, "c1")
	if err != nil {
		t.Fatalf("second Inspect failed: %v", err)
	}
	if c.Running {
		t.Error("expected the second inspect to see the stopped container")
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("expected 2 daemon calls, got %d", got)
	}

	// A cancelled caller fails on its own and does not affect the next one.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := d.Inspect(cancelled, "c1"); KindOf(err) != KindUnavailable {
		t.Errorf("expected unavailable for a cancelled context, got %v", err)
	}
	if _, err := d.Inspect(ctx, "c1"); err != nil {
		t.Errorf("Inspect after a cancelled caller failed: %v", err)
	}

	if _, err := d.Inspect(ctx, "gone"); KindOf(err) != KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}
