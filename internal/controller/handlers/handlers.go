// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"formplane/internal/coordinator"
	"formplane/internal/logger"
	"formplane/internal/store"
	"formplane/pkg/api"
)

// maxBodyBytes caps request bodies; form submissions are small.
const maxBodyBytes = 1 << 20

// Service is the coordinator surface the handlers call.
type Service interface {
	SubmitCreate(ctx context.Context, attrs store.Attributes) (*store.Entity, error)
	SubmitUpdate(ctx context.Context, id string, attrs store.Attributes, expectedRevision int64) (*store.Entity, error)
	SubmitDelete(ctx context.Context, id string) (*store.Entity, error)
	Retry(ctx context.Context, id string) (*store.Entity, error)
	GetStatus(ctx context.Context, id string) (*coordinator.Status, error)
	Get(ctx context.Context, id string) (*store.Entity, error)
	List(ctx context.Context) ([]store.Entity, error)
}

// Pinger is anything that can report whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are what the handlers need. Runtime and Started are optional.
type Dependencies struct {
	Service Service
	Store   Pinger
	Runtime Pinger

	// Started is closed once the engine has finished its startup resync.
	Started <-chan struct{}

	Logger *slog.Logger
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	service Service
	store   Pinger
	runtime Pinger
	started <-chan struct{}
	logger  *slog.Logger
}

// New creates a new Handlers instance.
func New(deps Dependencies) *Handlers {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Handlers{
		service: deps.Service,
		store:   deps.Store,
		runtime: deps.Runtime,
		started: deps.Started,
		logger:  deps.Logger,
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// serviceError maps coordinator and store errors onto HTTP statuses.
func (h *Handlers) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *coordinator.ValidationError
	switch {
	case errors.As(err, &verr):
		h.httpError(w, verr.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		h.httpError(w, "Entity not found", http.StatusNotFound)
	case errors.Is(err, store.ErrConflict):
		h.httpError(w, err.Error(), http.StatusConflict)
	default:
		logger.FromContext(r.Context(), h.logger).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		h.httpError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// decode reads a JSON body into v, answering 400 itself on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}
