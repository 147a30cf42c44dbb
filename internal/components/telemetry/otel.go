package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// OtlpEndpoint describes where one signal is exported to, grpc wins when both are set.
type OtlpEndpoint struct {
	GrpcEndpoint string            `json:"grpc_endpoint"`
	HttpEndpoint string            `json:"http_endpoint"`
	Headers      map[string]string `json:"headers"`
}

func (e OtlpEndpoint) enabled() bool {
	return e.GrpcEndpoint != "" || e.HttpEndpoint != ""
}

// Config is the `telemetry` section of the service configuration.
type Config struct {
	Traces  OtlpEndpoint `json:"traces"`
	Metrics OtlpEndpoint `json:"metrics"`
}

// Shutdown flushes and stops whatever providers Setup installed.
type Shutdown func(ctx context.Context) error

// Setup installs global otel tracer/meter providers for every signal that has an endpoint.
// Signals without an endpoint keep the otel no-op providers.
func Setup(ctx context.Context, serviceName string, cfg Config, tel API) (Shutdown, error) {
	tel = NewScopedAPI("telemetry", tel)

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	var shutdowns []Shutdown

	if cfg.Traces.enabled() {
		exporter, err := newTraceExporter(ctx, cfg.Traces)
		if err != nil {
			return nil, err
		}
		provider := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(provider)
		shutdowns = append(shutdowns, provider.Shutdown)
		tel.ReportDebug("trace exporter initialized", cfg.Traces.GrpcEndpoint, cfg.Traces.HttpEndpoint)
	}

	if cfg.Metrics.enabled() {
		exporter, err := newMetricExporter(ctx, cfg.Metrics)
		if err != nil {
			return nil, err
		}
		provider := metric.NewMeterProvider(
			metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(time.Second*15))),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(provider)
		shutdowns = append(shutdowns, provider.Shutdown)
		tel.ReportDebug("metric exporter initialized", cfg.Metrics.GrpcEndpoint, cfg.Metrics.HttpEndpoint)
	}

	return func(ctx context.Context) error {
		var errs []error
		for _, shutdown := range shutdowns {
			errs = append(errs, shutdown(ctx))
		}
		return errors.Join(errs...)
	}, nil
}

func newTraceExporter(ctx context.Context, e OtlpEndpoint) (sdktrace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*3)
	defer cancel()

	if e.GrpcEndpoint != "" {
		return otlptracegrpc.New(
			ctx,
			otlptracegrpc.WithEndpointURL(e.GrpcEndpoint),
			otlptracegrpc.WithHeaders(e.Headers),
		)
	}
	return otlptracehttp.New(
		ctx,
		otlptracehttp.WithEndpointURL(e.HttpEndpoint),
		otlptracehttp.WithHeaders(e.Headers),
	)
}

func newMetricExporter(ctx context.Context, e OtlpEndpoint) (metric.Exporter, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*3)
	defer cancel()

	if e.GrpcEndpoint != "" {
		return otlpmetricgrpc.New(
			ctx,
			otlpmetricgrpc.WithEndpointURL(e.GrpcEndpoint),
			otlpmetricgrpc.WithHeaders(e.Headers),
		)
	}
	return otlpmetrichttp.New(
		ctx,
		otlpmetrichttp.WithEndpointURL(e.HttpEndpoint),
		otlpmetrichttp.WithHeaders(e.Headers),
	)
}
