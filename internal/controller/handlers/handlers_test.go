package handlers

import (
	"context"
	"net/http"
	"time"

	"formplane/internal/coordinator"
	"formplane/internal/reconciler"
	"formplane/internal/store"
)

const testID = "0b0f0c2e-7d3a-4c36-9a51-5f0f3f1f7a10"

// mockService implements Service for handler tests.
type mockService struct {
	createResp *store.Entity
	createErr  error
	updateResp *store.Entity
	updateErr  error
	deleteResp *store.Entity
	deleteErr  error
	retryResp  *store.Entity
	retryErr   error
	statusResp *coordinator.Status
	statusErr  error
	getResp    *store.Entity
	getErr     error
	listResp   []store.Entity
	listErr    error

	capturedID       string
	capturedAttrs    store.Attributes
	capturedRevision int64
}

func (m *mockService) SubmitCreate(ctx context.Context, attrs store.Attributes) (*store.Entity, error) {
	m.capturedAttrs = attrs
	return m.createResp, m.createErr
}

func (m *mockService) SubmitUpdate(ctx context.Context, id string, attrs store.Attributes, expectedRevision int64) (*store.Entity, error) {
	m.capturedID = id
	m.capturedAttrs = attrs
	m.capturedRevision = expectedRevision
	return m.updateResp, m.updateErr
}

func (m *mockService) SubmitDelete(ctx context.Context, id string) (*store.Entity, error) {
	m.capturedID = id
	return m.deleteResp, m.deleteErr
}

func (m *mockService) Retry(ctx context.Context, id string) (*store.Entity, error) {
	m.capturedID = id
	return m.retryResp, m.retryErr
}

func (m *mockService) GetStatus(ctx context.Context, id string) (*coordinator.Status, error) {
	m.capturedID = id
	return m.statusResp, m.statusErr
}

func (m *mockService) Get(ctx context.Context, id string) (*store.Entity, error) {
	m.capturedID = id
	return m.getResp, m.getErr
}

func (m *mockService) List(ctx context.Context) ([]store.Entity, error) {
	return m.listResp, m.listErr
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}

// routes mirrors the controller's routing so path values resolve.
func routes(h *Handlers) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /entities", h.CreateEntity)
	mux.HandleFunc("GET /entities", h.ListEntities)
	mux.HandleFunc("GET /entities/{id}", h.GetEntity)
	mux.HandleFunc("PUT /entities/{id}", h.UpdateEntity)
	mux.HandleFunc("DELETE /entities/{id}", h.DeleteEntity)
	mux.HandleFunc("GET /entities/{id}/status", h.GetEntityStatus)
	mux.HandleFunc("POST /entities/{id}/retry", h.RetryEntity)
	return mux
}

func pendingEntity() *store.Entity {
	return &store.Entity{
		ID:          testID,
		Attributes:  store.Attributes{Name: "alice", Email: "a@x.io", Age: 30},
		DesiredName: "alice",
		State:       store.StatePending,
		Revision:    1,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func readyEntity() *store.Entity {
	e := pendingEntity()
	e.State = store.StateReady
	e.Revision = 3
	e.SetContainer("c0ffee", "alice")
	return e
}

func statusOf(e *store.Entity, job *reconciler.JobStatus) *coordinator.Status {
	return &coordinator.Status{
		EntityID:      e.ID,
		State:         e.State,
		Deleting:      e.Deleting,
		Revision:      e.Revision,
		ContainerRef:  e.ContainerRef,
		ContainerName: e.ContainerName,
		LastError:     e.LastError,
		Job:           job,
	}
}
