package reconciler

import (
	"sync"
	"time"
)

// statusTracker keeps the latest job status per entity.
type statusTracker struct {
	mu       sync.RWMutex
	statuses map[string]*JobStatus
	now      func() time.Time
}

func newStatusTracker() *statusTracker {
	return &statusTracker{
		statuses: make(map[string]*JobStatus),
		now:      time.Now,
	}
}

func (s *statusTracker) set(job Job, phase Phase, attempts int, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status, ok := s.statuses[job.EntityID]
	if !ok {
		status = &JobStatus{EntityID: job.EntityID}
		s.statuses[job.EntityID] = status
	}
	// A newer job already waits behind this one; it owns the status now.
	if phase != PhaseQueued && status.Phase == PhaseQueued && status.Revision > job.Revision {
		return
	}
	status.Target = job.Target
	status.Revision = job.Revision
	status.Phase = phase
	status.Attempts = attempts
	status.LastError = errMsg
	status.UpdatedAt = s.now()
}

func (s *statusTracker) queued(job Job) {
	s.set(job, PhaseQueued, 0, "")
}

func (s *statusTracker) restore(status JobStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.EntityID] = &status
}

func (s *statusTracker) get(entityID string) (JobStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[entityID]
	if !ok {
		return JobStatus{}, false
	}
	return *status, true
}

// prune drops terminal statuses last updated before cutoff.
func (s *statusTracker) prune(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, status := range s.statuses {
		if status.Phase.Terminal() && status.UpdatedAt.Before(cutoff) {
			delete(s.statuses, id)
			n++
		}
	}
	return n
}
