// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// Attributes are the form fields of an entity.
type Attributes struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Age     int    `json:"age,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Address string `json:"address,omitempty"`
}

// CreateEntityRequest is the request body for POST /entities.
type CreateEntityRequest struct {
	Attributes
}

// UpdateEntityRequest is the request body for PUT /entities/{id}.
// An empty email keeps the stored one.
type UpdateEntityRequest struct {
	Attributes
	ExpectedRevision int64 `json:"expected_revision"`
}

// EntityResponse is the snapshot of an entity returned by every endpoint.
type EntityResponse struct {
	ID            string     `json:"id"`
	Attributes    Attributes `json:"attributes"`
	DesiredName   string     `json:"desired_name,omitempty"`
	State         string     `json:"state"`
	Deleting      bool       `json:"deleting,omitempty"`
	Revision      int64      `json:"revision"`
	ContainerRef  *string    `json:"container_ref,omitempty"`
	ContainerName *string    `json:"container_name,omitempty"`
	LastError     *string    `json:"last_error,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// ListEntitiesResponse is the response body for GET /entities.
type ListEntitiesResponse struct {
	Entities []EntityResponse `json:"entities"`
}

// JobStatusResponse describes the latest reconciliation job of an entity.
type JobStatusResponse struct {
	Target    string    `json:"target"`
	Revision  int64     `json:"revision"`
	Phase     string    `json:"phase"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EntityStatusResponse is the response body for GET /entities/{id}/status.
type EntityStatusResponse struct {
	ID            string             `json:"id"`
	State         string             `json:"state"`
	Deleting      bool               `json:"deleting,omitempty"`
	Revision      int64              `json:"revision"`
	ContainerRef  *string            `json:"container_ref,omitempty"`
	ContainerName *string            `json:"container_name,omitempty"`
	LastError     *string            `json:"last_error,omitempty"`
	Job           *JobStatusResponse `json:"job,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// Lifecycle states as they appear on the wire.
const (
	StatePending      = "pending"
	StateProvisioning = "provisioning"
	StateReady        = "ready"
	StateUpdating     = "updating"
	StateStopping     = "stopping"
	StateRemoved      = "removed"
	StateFailed       = "failed"
)
