package reconciler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"formplane/internal/runtime"
	"formplane/internal/store"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Config holds configuration for the engine.
type Config struct {
	Workers         int
	Image           string
	JobTimeout      time.Duration // Upper bound for one job, retries included (default: 2m)
	ResyncInterval  time.Duration // Interval between drift sweeps (default: 5m)
	StatusRetention time.Duration // How long finished job statuses are kept (default: 1h)
	Policy          Policy
}

// Engine consumes reconciliation jobs with a fixed pool of workers.
type Engine struct {
	store   store.EntityStore
	runtime runtime.Runtime
	config  Config
	logger  *slog.Logger

	queue   *workQueue
	tracker *statusTracker
	metrics *engineMetrics
	tracer  trace.Tracer

	started chan struct{}
	done    chan struct{}
}

// New creates an engine. The runtime is owned by the caller.
func New(st store.EntityStore, rt runtime.Runtime, config Config, logger *slog.Logger) *Engine {
	if config.Workers <= 0 {
		config.Workers = 4
	}
	if config.Image == "" {
		config.Image = "mongo"
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = 2 * time.Minute
	}
	if config.ResyncInterval <= 0 {
		config.ResyncInterval = 5 * time.Minute
	}
	if config.StatusRetention <= 0 {
		config.StatusRetention = time.Hour
	}
	config.Policy = config.Policy.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		store:   st,
		runtime: rt,
		config:  config,
		logger:  logger.With("component", "reconciler"),
		queue:   newWorkQueue(),
		tracker: newStatusTracker(),
		tracer:  otel.Tracer(instrumentationName),
		started: make(chan struct{}),
		done:    make(chan struct{}),
	}
	e.metrics = newEngineMetrics(e.logger, e.queue.Len)
	return e
}

// Enqueue schedules a job. The trace context of ctx travels with the job.
func (e *Engine) Enqueue(ctx context.Context, job Job) {
	if job.Target == "" {
		job.Target = TargetReady
	}
	if job.Trace == nil {
		carrier := propagation.MapCarrier{}
		otel.GetTextMapPropagator().Inject(ctx, carrier)
		job.Trace = carrier
	}
	e.tracker.queued(job)
	e.queue.Add(job)
}

// Status returns the latest job status for an entity.
func (e *Engine) Status(entityID string) (JobStatus, bool) {
	return e.tracker.get(entityID)
}

// QueueLen returns the number of jobs waiting for a worker.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Run starts the workers and the periodic resync. It blocks until ctx is
// cancelled, then waits for in-flight jobs to return.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine starting", "workers", e.config.Workers, "resync_interval", e.config.ResyncInterval)

	var wg sync.WaitGroup
	for i := 0; i < e.config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.worker(ctx)
		}()
	}

	if err := e.Resync(ctx); err != nil {
		e.logger.Error("startup resync failed", "error", err)
	}
	close(e.started)

	ticker := time.NewTicker(e.config.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("engine stopping, waiting for in-flight jobs")
			e.queue.Shutdown()
			wg.Wait()
			close(e.done)
			return ctx.Err()
		case <-ticker.C:
			if err := e.Resync(ctx); err != nil {
				e.logger.Error("resync failed", "error", err)
			}
			e.tracker.prune(time.Now().Add(-e.config.StatusRetention))
		}
	}
}

// Started returns a channel that is closed once the startup resync has
// queued the entities left mid-transition by a previous process.
func (e *Engine) Started() <-chan struct{} {
	return e.started
}

// Done returns a channel that is closed when the engine has fully stopped.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Resync enqueues a job for every live entity that is not failed.
func (e *Engine) Resync(ctx context.Context) error {
	entities, err := e.store.ListByState(ctx,
		store.StatePending, store.StateProvisioning, store.StateReady,
		store.StateUpdating, store.StateStopping,
	)
	if err != nil {
		return err
	}
	for i := range entities {
		ent := &entities[i]
		e.Enqueue(ctx, Job{EntityID: ent.ID, Target: targetFor(ent), Revision: ent.Revision})
	}
	e.logger.Debug("resync enqueued jobs", "count", len(entities))
	return nil
}

func targetFor(ent *store.Entity) Target {
	switch {
	case ent.Deleting:
		return TargetRemoved
	case ent.State == store.StateUpdating:
		return TargetUpdated
	default:
		return TargetReady
	}
}

func (e *Engine) worker(ctx context.Context) {
	for {
		job, ok := e.queue.Get(ctx)
		if !ok {
			return
		}
		e.process(ctx, job)
		e.queue.Done(job)
	}
}

// process runs one job and records its outcome.
func (e *Engine) process(ctx context.Context, job Job) {
	start := time.Now()

	traceCtx := ctx
	if job.Trace != nil {
		traceCtx = otel.GetTextMapPropagator().Extract(ctx, job.Trace)
	}
	spanCtx, span := e.tracer.Start(traceCtx, "reconcile",
		trace.WithAttributes(
			attribute.String("entity.id", job.EntityID),
			attribute.String("job.target", string(job.Target)),
			attribute.Int64("job.revision", job.Revision),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	jobCtx, cancel := context.WithTimeout(spanCtx, e.config.JobTimeout)
	defer cancel()

	r := &run{
		engine: e,
		job:    job,
		logger: e.logger.With("entity_id", job.EntityID, "target", job.Target),
	}
	prev, hadPrev := e.tracker.get(job.EntityID)
	e.tracker.set(job, PhaseRunning, 0, "")

	err := r.reconcile(jobCtx)
	phase := r.outcome(ctx, jobCtx, err)

	if errors.Is(err, errStale) && hadPrev && prev.Phase.Terminal() {
		// Nothing ran; keep the outcome of the job that made this one stale.
		e.tracker.restore(prev)
		r.logger.Debug("dropped stale job", "job_revision", job.Revision)
		return
	}

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
		span.RecordError(err)
	}
	if phase == PhaseFailed {
		span.SetStatus(codes.Error, errMsg)
	}
	span.SetAttributes(attribute.String("job.outcome", string(phase)))

	e.tracker.set(job, phase, r.attempts, errMsg)
	e.metrics.jobFinished(spanCtx, job, phase, time.Since(start))

	switch phase {
	case PhaseFailed:
		r.logger.Warn("reconcile failed", "error", err, "attempts", r.attempts)
	case PhaseAbandoned:
		r.logger.Info("reconcile abandoned", "reason", err)
	default:
		r.logger.Debug("reconcile succeeded", "elapsed", time.Since(start))
	}
}

var (
	// errSuperseded means a newer intent changed the entity while the job ran.
	errSuperseded = errors.New("entity changed by a newer intent")

	// errStale means the job was enqueued for an older revision.
	errStale = errors.New("job revision is stale")

	// errAwaitingRedrive means the entity is failed and the job may not
	// re-drive it.
	errAwaitingRedrive = errors.New("entity is failed and awaits a re-drive")

	// errNotConverged means the state machine kept moving without resting.
	errNotConverged = errors.New("reconcile did not converge")
)
