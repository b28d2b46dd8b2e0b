// Package tracing wires the engine's own OpenTelemetry SDK. The engine
// observes the sue through its telemetry stores; this package covers the
// opposite direction, exporting the engine's lifecycle spans so that an
// experiment run can itself be inspected in a trace backend.
package tracing

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"
)

const (
	// TracerName identifies all spans emitted by the engine
	TracerName = "faultline.dev/faultline-go"
	// ServiceName is the otel service the engine reports itself as
	ServiceName = "faultline_engine"
	// EndpointEnv names the env var holding the OTLP collector endpoint;
	// self-tracing stays off when it is unset
	EndpointEnv = "FAULTLINE_OTEL_ENDPOINT"
)

// InitOTelSDK installs a global tracer provider exporting to the given
// OTLP gRPC endpoint and returns its shutdown hook
func InitOTelSDK(ctx context.Context, endpoint string) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	tracerProvider, err := newTracerProvider(ctx, endpoint)
	if err != nil {
		err = errors.Join(err, shutdown(ctx))
		return
	}

	otel.SetTextMapPropagator(newPropagator())
	shutdownFuncs = append(shutdownFuncs, tracerProvider.Shutdown)
	otel.SetTracerProvider(tracerProvider)
	return
}

func newPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

func newTracerProvider(ctx context.Context, endpoint string) (*trace.TracerProvider, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptrace.New(
		ctx,
		otlptracegrpc.NewClient(
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(endpoint),
		),
	)
	if err != nil {
		return nil, err
	}

	batchSpanProcessor := trace.NewBatchSpanProcessor(traceExporter)
	tracerProvider := trace.NewTracerProvider(
		trace.WithSampler(trace.AlwaysSample()),
		trace.WithResource(res),
		trace.WithSpanProcessor(batchSpanProcessor),
	)
	return tracerProvider, nil
}
