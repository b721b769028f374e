// Package reconciler drives entities towards their desired state.
//
// Jobs are keyed by entity id: at most one job per entity is in flight, and
// a job that arrives while its entity is being processed waits behind it.
// Each job loads the stored record, steps the lifecycle state machine
//
//	pending -> provisioning -> ready <-> updating
//	(deleting) -> stopping -> removed
//	any -> failed -> pending (re-drive)
//
// and writes every transition with a compare-and-swap on the revision it
// last observed. A failed compare-and-swap means a newer intent has been
// accepted and queued, so the running job is abandoned.
package reconciler
