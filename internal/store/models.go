// Package store contains the desired-state layer for formplane.
package store

import "time"

// State is the lifecycle state of an entity.
type State string

const (
	StatePending      State = "pending"
	StateProvisioning State = "provisioning"
	StateReady        State = "ready"
	StateUpdating     State = "updating"
	StateStopping     State = "stopping"
	StateRemoved      State = "removed"
	StateFailed       State = "failed"
)

// HasContainer reports whether an entity in this state must carry a
// container reference.
func (s State) HasContainer() bool {
	switch s {
	case StateProvisioning, StateReady, StateUpdating, StateStopping:
		return true
	}
	return false
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateProvisioning, StateReady, StateUpdating,
		StateStopping, StateRemoved, StateFailed:
		return true
	}
	return false
}

// Attributes are the form fields submitted by a user.
// The reconciler only ever compares them for equality.
type Attributes struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Age     int    `json:"age,omitempty"`
	Gender  string `json:"gender,omitempty"`
	Address string `json:"address,omitempty"`
}

// Entity is one user's submission and the container provisioned for it.
type Entity struct {
	ID         string
	Attributes Attributes

	// DesiredName is the sanitized runtime name derived from Attributes.Name.
	DesiredName string

	// ContainerRef and ContainerName are set iff State.HasContainer().
	ContainerRef  *string
	ContainerName *string

	State    State
	Deleting bool
	Revision int64

	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of e.
func (e *Entity) Clone() *Entity {
	c := *e
	if e.ContainerRef != nil {
		ref := *e.ContainerRef
		c.ContainerRef = &ref
	}
	if e.ContainerName != nil {
		name := *e.ContainerName
		c.ContainerName = &name
	}
	if e.LastError != nil {
		msg := *e.LastError
		c.LastError = &msg
	}
	return &c
}

// SetContainer records the container backing this entity.
func (e *Entity) SetContainer(ref, name string) {
	e.ContainerRef = &ref
	e.ContainerName = &name
}

// ClearContainer forgets the container backing this entity.
func (e *Entity) ClearContainer() {
	e.ContainerRef = nil
	e.ContainerName = nil
}

// Ref returns the container reference or "".
func (e *Entity) Ref() string {
	if e.ContainerRef == nil {
		return ""
	}
	return *e.ContainerRef
}

// Name returns the current container name or "".
func (e *Entity) Name() string {
	if e.ContainerName == nil {
		return ""
	}
	return *e.ContainerName
}

// SetError records msg as the last reconciliation error. An empty msg clears it.
func (e *Entity) SetError(msg string) {
	if msg == "" {
		e.LastError = nil
		return
	}
	e.LastError = &msg
}
