// Package observability provides OpenTelemetry instrumentation for tracing and metrics.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"

	"formplane/internal/store"
)

// InitMetrics initializes the OpenTelemetry metrics provider with a Prometheus exporter.
// It returns the HTTP handler for the /metrics endpoint and a shutdown function.
// The shutdown function should be called on application exit for graceful cleanup.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(exporter),
	)

	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// StateCounter reports how many live entities sit in each lifecycle state.
type StateCounter interface {
	CountByState(ctx context.Context) (map[store.State]int64, error)
}

// RegisterEntityGauge exports formplane_entities{state=...}, read from the
// store at every scrape.
func RegisterEntityGauge(counter StateCounter) (otelmetric.Registration, error) {
	meter := otel.Meter("formplane/store")
	gauge, err := meter.Int64ObservableGauge("formplane_entities",
		otelmetric.WithDescription("Live entities by lifecycle state"),
	)
	if err != nil {
		return nil, fmt.Errorf("create entity gauge: %w", err)
	}

	return meter.RegisterCallback(func(ctx context.Context, o otelmetric.Observer) error {
		counts, err := counter.CountByState(ctx)
		if err != nil {
			return err
		}
		for state, n := range counts {
			o.ObserveInt64(gauge, n, otelmetric.WithAttributes(attribute.String("state", string(state))))
		}
		return nil
	}, gauge)
}
