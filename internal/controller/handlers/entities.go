package handlers

import (
	"net/http"

	"formplane/internal/coordinator"
	"formplane/internal/store"
	"formplane/pkg/api"

	"github.com/google/uuid"
)

// CreateEntity handles POST /entities.
// It persists the submission and returns before the container exists.
func (h *Handlers) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req api.CreateEntityRequest
	if !h.decode(w, r, &req) {
		return
	}

	ent, err := h.service.SubmitCreate(r.Context(), toAttributes(req.Attributes))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusAccepted, toEntityResponse(ent))
}

// ListEntities handles GET /entities.
func (h *Handlers) ListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.service.List(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}

	resp := api.ListEntitiesResponse{Entities: make([]api.EntityResponse, 0, len(entities))}
	for i := range entities {
		resp.Entities = append(resp.Entities, toEntityResponse(&entities[i]))
	}
	h.respondJson(w, http.StatusOK, resp)
}

// GetEntity handles GET /entities/{id}.
func (h *Handlers) GetEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}

	ent, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, toEntityResponse(ent))
}

// UpdateEntity handles PUT /entities/{id}.
func (h *Handlers) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}

	var req api.UpdateEntityRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ExpectedRevision <= 0 {
		h.httpError(w, "expected_revision is required", http.StatusBadRequest)
		return
	}

	ent, err := h.service.SubmitUpdate(r.Context(), id, toAttributes(req.Attributes), req.ExpectedRevision)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusAccepted, toEntityResponse(ent))
}

// DeleteEntity handles DELETE /entities/{id}.
// Deleting an entity that is already gone answers with a removed snapshot.
func (h *Handlers) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}

	ent, err := h.service.SubmitDelete(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusAccepted, toEntityResponse(ent))
}

// GetEntityStatus handles GET /entities/{id}/status.
func (h *Handlers) GetEntityStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}

	status, err := h.service.GetStatus(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, toStatusResponse(status))
}

// RetryEntity handles POST /entities/{id}/retry.
func (h *Handlers) RetryEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := h.entityID(w, r)
	if !ok {
		return
	}

	ent, err := h.service.Retry(r.Context(), id)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusAccepted, toEntityResponse(ent))
}

// entityID reads the {id} path value. Anything that is not a UUID cannot
// name an entity.
func (h *Handlers) entityID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Entity not found", http.StatusNotFound)
		return "", false
	}
	return id.String(), true
}

func toAttributes(a api.Attributes) store.Attributes {
	return store.Attributes{
		Name:    a.Name,
		Email:   a.Email,
		Age:     a.Age,
		Gender:  a.Gender,
		Address: a.Address,
	}
}

func toEntityResponse(e *store.Entity) api.EntityResponse {
	resp := api.EntityResponse{
		ID: e.ID,
		Attributes: api.Attributes{
			Name:    e.Attributes.Name,
			Email:   e.Attributes.Email,
			Age:     e.Attributes.Age,
			Gender:  e.Attributes.Gender,
			Address: e.Attributes.Address,
		},
		DesiredName:   e.DesiredName,
		State:         string(e.State),
		Deleting:      e.Deleting,
		Revision:      e.Revision,
		ContainerRef:  e.ContainerRef,
		ContainerName: e.ContainerName,
		LastError:     e.LastError,
	}
	if !e.CreatedAt.IsZero() {
		createdAt := e.CreatedAt
		resp.CreatedAt = &createdAt
	}
	if !e.UpdatedAt.IsZero() {
		updatedAt := e.UpdatedAt
		resp.UpdatedAt = &updatedAt
	}
	return resp
}

func toStatusResponse(s *coordinator.Status) api.EntityStatusResponse {
	resp := api.EntityStatusResponse{
		ID:            s.EntityID,
		State:         string(s.State),
		Deleting:      s.Deleting,
		Revision:      s.Revision,
		ContainerRef:  s.ContainerRef,
		ContainerName: s.ContainerName,
		LastError:     s.LastError,
	}
	if s.Job != nil {
		resp.Job = &api.JobStatusResponse{
			Target:    string(s.Job.Target),
			Revision:  s.Job.Revision,
			Phase:     string(s.Job.Phase),
			Attempts:  s.Job.Attempts,
			LastError: s.Job.LastError,
			UpdatedAt: s.Job.UpdatedAt,
		}
	}
	return resp
}
