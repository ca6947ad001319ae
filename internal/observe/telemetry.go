package observe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/toolwarden/toolwarden/internal/domain/guard"
)

// scope names the instrumentation emitted by this package.
const scope = "toolwarden"

// Telemetry manages the OpenTelemetry trace and metric providers. Each
// signal can be enabled independently; a disabled signal gets a no-op
// tracer or meter so call sites never branch.
type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	logger         *slog.Logger
}

// NewTelemetry builds the OpenTelemetry providers. Both exporters write
// JSON to w, normally stderr so stdout stays free for audit output.
// Returns nil when both signals are disabled.
func NewTelemetry(traces, metrics bool, version string, w io.Writer, logger *slog.Logger) (*Telemetry, error) {
	if !traces && !metrics {
		return nil, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(scope),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	t := &Telemetry{logger: logger}

	if traces {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		t.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithBatcher(exporter),
		)
		otel.SetTracerProvider(t.tracerProvider)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		t.tracer = t.tracerProvider.Tracer(scope)
	} else {
		t.tracer = tracenoop.NewTracerProvider().Tracer(scope)
	}

	if metrics {
		exporter, err := stdoutmetric.New(stdoutmetric.WithEncoder(json.NewEncoder(w)))
		if err != nil {
			if t.tracerProvider != nil {
				_ = t.tracerProvider.Shutdown(context.Background())
			}
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		t.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(15*time.Second),
			)),
		)
		otel.SetMeterProvider(t.meterProvider)
		t.meter = t.meterProvider.Meter(scope)
	} else {
		t.meter = metricnoop.NewMeterProvider().Meter(scope)
	}

	logger.Info("telemetry initialized", "traces", traces, "metrics", metrics)
	return t, nil
}

// Tracer returns the tracer for guarded operation spans.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Meter returns the meter for custom instruments.
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// Stats builds the OpenTelemetry counterparts of the decision metrics.
// With the metric signal disabled the instruments are no-ops, so the
// recorder can be fanned in unconditionally.
func (t *Telemetry) Stats() (*TelemetryStats, error) {
	allowed, err := t.meter.Int64Counter("toolwarden.checks.allowed",
		metric.WithDescription("Guarded operations that passed every check"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create allowed counter: %w", err)
	}
	denied, err := t.meter.Int64Counter("toolwarden.checks.denied",
		metric.WithDescription("Guarded operations denied, by failing check"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create denied counter: %w", err)
	}
	duration, err := t.meter.Float64Histogram("toolwarden.check.duration",
		metric.WithDescription("Full check chain duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return &TelemetryStats{allowed: allowed, denied: denied, duration: duration}, nil
}

// Shutdown flushes buffered spans and metrics and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

// TelemetryStats mirrors the decision counters onto OpenTelemetry
// instruments so the stdout exporter carries them alongside traces.
type TelemetryStats struct {
	allowed  metric.Int64Counter
	denied   metric.Int64Counter
	duration metric.Float64Histogram
}

// RecordAllow counts an operation that passed the whole chain.
func (s *TelemetryStats) RecordAllow() {
	s.allowed.Add(context.Background(), 1)
}

// RecordDeny counts a denial under the failing check's kind.
func (s *TelemetryStats) RecordDeny(kind string) {
	s.denied.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("check", kind)))
}

// RecordLatency observes the full chain duration.
func (s *TelemetryStats) RecordLatency(elapsed time.Duration) {
	s.duration.Record(context.Background(), elapsed.Seconds())
}

// Compile-time interface verification.
var _ guard.StatsRecorder = (*TelemetryStats)(nil)
