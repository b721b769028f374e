package reconciler

import (
	"context"
	"sync"
)

// workQueue is a FIFO of jobs with at most one entry and one in-flight job
// per entity.
type workQueue struct {
	mu sync.Mutex

	// queue holds jobs in FIFO order
	queue []Job

	// processing tracks entities with a job in flight
	processing map[string]bool

	// dirty holds the job to run once the in-flight one is done
	dirty map[string]Job

	cond *sync.Cond

	shuttingDown bool
}

func newWorkQueue() *workQueue {
	q := &workQueue{
		processing: make(map[string]bool),
		dirty:      make(map[string]Job),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// merge collapses two jobs for the same entity into the newer one.
func merge(existing, incoming Job) Job {
	next := incoming
	if existing.Revision > incoming.Revision {
		next = existing
	}
	next.Redrive = existing.Redrive || incoming.Redrive
	return next
}

// Add queues job, or folds it into a job already waiting for the entity.
func (q *workQueue) Add(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.shuttingDown {
		return
	}

	key := job.EntityID

	if q.processing[key] {
		if parked, ok := q.dirty[key]; ok {
			job = merge(parked, job)
		}
		q.dirty[key] = job
		return
	}

	for i, existing := range q.queue {
		if existing.EntityID == key {
			q.queue[i] = merge(existing, job)
			return
		}
	}

	q.queue = append(q.queue, job)
	q.cond.Signal()
}

// Get retrieves the next job, blocking until one is available, the queue
// shuts down or ctx is done.
func (q *workQueue) Get(ctx context.Context) (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.queue) == 0 && !q.shuttingDown {
		select {
		case <-ctx.Done():
			return Job{}, false
		default:
		}

		// Wake the cond when ctx is cancelled. Closing done releases the
		// goroutine on a normal wakeup.
		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				q.mu.Lock()
				q.cond.Broadcast()
				q.mu.Unlock()
			case <-done:
			}
		}()

		q.cond.Wait()
		close(done)

		select {
		case <-ctx.Done():
			return Job{}, false
		default:
		}
	}

	if q.shuttingDown && len(q.queue) == 0 {
		return Job{}, false
	}

	job := q.queue[0]
	q.queue = q.queue[1:]
	q.processing[job.EntityID] = true

	return job, true
}

// Done marks the entity's in-flight job as finished and releases any job
// that was parked behind it.
func (q *workQueue) Done(job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := job.EntityID
	delete(q.processing, key)

	if parked, ok := q.dirty[key]; ok {
		delete(q.dirty, key)
		if q.shuttingDown {
			return
		}
		q.queue = append(q.queue, parked)
		q.cond.Signal()
	}
}

// Len returns the number of jobs waiting, including parked ones.
func (q *workQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue) + len(q.dirty)
}

// Shutdown stops the queue and discards waiting jobs. Entities left
// mid-transition are picked up by the startup resync of the next process.
func (q *workQueue) Shutdown() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuttingDown = true
	q.queue = nil
	q.cond.Broadcast()
}
