package reconciler

import (
	"context"
	"log/slog"
	"time"

	"formplane/internal/runtime"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "formplane/reconciler"

type engineMetrics struct {
	jobs          metric.Int64Counter
	runtimeErrors metric.Int64Counter
	duration      metric.Float64Histogram
}

// newEngineMetrics registers the engine's instruments on the global meter
// provider. Instruments that fail to register fall back to no-ops.
func newEngineMetrics(logger *slog.Logger, queueLen func() int) *engineMetrics {
	meter := otel.Meter(instrumentationName)
	m := &engineMetrics{}

	var err error
	if m.jobs, err = meter.Int64Counter("formplane_reconcile_jobs_total",
		metric.WithDescription("Reconciliation jobs by target and outcome")); err != nil {
		logger.Warn("failed to register metric", "metric", "formplane_reconcile_jobs_total", "error", err)
	}
	if m.runtimeErrors, err = meter.Int64Counter("formplane_runtime_errors_total",
		metric.WithDescription("Container runtime errors by operation and kind")); err != nil {
		logger.Warn("failed to register metric", "metric", "formplane_runtime_errors_total", "error", err)
	}
	if m.duration, err = meter.Float64Histogram("formplane_reconcile_job_duration_seconds",
		metric.WithDescription("Time spent processing one reconciliation job"),
		metric.WithUnit("s")); err != nil {
		logger.Warn("failed to register metric", "metric", "formplane_reconcile_job_duration_seconds", "error", err)
	}
	if _, err = meter.Int64ObservableGauge("formplane_reconcile_queue_depth",
		metric.WithDescription("Jobs waiting for a worker"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(int64(queueLen()))
			return nil
		})); err != nil {
		logger.Warn("failed to register metric", "metric", "formplane_reconcile_queue_depth", "error", err)
	}
	return m
}

func (m *engineMetrics) jobFinished(ctx context.Context, job Job, phase Phase, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("target", string(job.Target)),
		attribute.String("outcome", string(phase)),
	)
	if m.jobs != nil {
		m.jobs.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, elapsed.Seconds(), attrs)
	}
}

func (m *engineMetrics) runtimeError(ctx context.Context, op string, kind runtime.Kind) {
	if m.runtimeErrors == nil {
		return
	}
	m.runtimeErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("kind", string(kind)),
	))
}
