package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"formplane/internal/controller/handlers"
	"formplane/internal/coordinator"
	"formplane/internal/reconciler"
	"formplane/internal/runtime/fake"
	"formplane/internal/store/memory"
)

type nopEngine struct{}

func (nopEngine) Enqueue(ctx context.Context, job reconciler.Job) {}

func (nopEngine) Status(id string) (reconciler.JobStatus, bool) {
	return reconciler.JobStatus{}, false
}

func newTestRoutes(t *testing.T, opts Options) http.Handler {
	t.Helper()
	st := memory.New()
	started := make(chan struct{})
	close(started)
	return Routes(handlers.Dependencies{
		Service: coordinator.New(st, nopEngine{}, nil),
		Store:   st,
		Runtime: fake.New(),
		Started: started,
	}, opts)
}

func TestRoutes_TokenGuardsMutations(t *testing.T) {
	h := newTestRoutes(t, Options{APIToken: "s3cret"})

	body := `{"name": "alice", "email": "alice@example.com"}`

	req := httptest.NewRequest(http.MethodPost, "/entities", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("without token: got %d, want 401", rr.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/entities", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer s3cret")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("with token: got %d, want 202: %s", rr.Code, rr.Body.String())
	}

	// Reads stay open.
	req = httptest.NewRequest(http.MethodGet, "/entities", nil)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("list: got %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "alice@example.com") {
		t.Errorf("list body = %s", rr.Body.String())
	}
}

func TestRoutes_RequestIDEchoed(t *testing.T) {
	h := newTestRoutes(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Header().Get("X-Request-ID") != "abc" {
		t.Errorf("X-Request-ID = %q, want abc", rr.Header().Get("X-Request-ID"))
	}
}

func TestRoutes_Readyz(t *testing.T) {
	h := newTestRoutes(t, Options{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("readyz: got %d, want 200", rr.Code)
	}
}

func TestRoutes_MetricsOptional(t *testing.T) {
	h := newTestRoutes(t, Options{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("metrics without handler: got %d, want 404", rr.Code)
	}

	h = newTestRoutes(t, Options{Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("# metrics"))
	})})
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK || rr.Body.String() != "# metrics" {
		t.Errorf("metrics: got %d %q", rr.Code, rr.Body.String())
	}
}

func TestRoutes_ZeroOptions(t *testing.T) {
	st := memory.New()
	h := Routes(handlers.Dependencies{
		Service: coordinator.New(st, nopEngine{}, nil),
		Store:   st,
	}, Options{})

	for _, path := range []string{"/healthz", "/readyz", "/entities"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Request-ID", "zero-options")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Errorf("GET %s: got %d, want 200", path, rr.Code)
		}
	}
}
