package reconciler

import (
	"time"

	"go.opentelemetry.io/otel/propagation"
)

// Target is the outcome a job was enqueued to reach.
type Target string

const (
	TargetReady   Target = "ready"
	TargetUpdated Target = "updated"
	TargetRemoved Target = "removed"
)

// Job is a queued unit of reconciliation work.
type Job struct {
	EntityID string
	Target   Target

	// Revision is the entity revision at enqueue time. Jobs older than the
	// stored revision are dropped.
	Revision int64

	// Redrive allows the job to move a failed entity back to pending.
	Redrive bool

	Trace propagation.MapCarrier
}

// Phase is where a job is in its lifecycle.
type Phase string

const (
	PhaseQueued    Phase = "queued"
	PhaseRunning   Phase = "running"
	PhaseSucceeded Phase = "succeeded"
	PhaseFailed    Phase = "failed"
	PhaseAbandoned Phase = "abandoned"
)

// Terminal reports whether no more work is pending for the job.
func (p Phase) Terminal() bool {
	return p == PhaseSucceeded || p == PhaseFailed || p == PhaseAbandoned
}

// JobStatus is the latest job outcome for an entity.
type JobStatus struct {
	EntityID  string
	Target    Target
	Revision  int64
	Phase     Phase
	Attempts  int // runtime calls made by the job
	LastError string
	UpdatedAt time.Time
}
