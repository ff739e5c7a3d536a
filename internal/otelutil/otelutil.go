// Package otelutil bootstraps the global tracer provider for the optional
// tracing exporters.
package otelutil

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	otlptracegrpc "go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

var tp *sdktrace.TracerProvider

// Init installs a global tracer provider. OTLP/gRPC wins when an endpoint
// is configured; MURMEL_OTEL_STDOUT=1 selects the stdout exporter. With
// neither set an error is returned, which callers may treat as "tracing
// off".
func Init() error {
	ctx := context.Background()

	res, err := sdkresource.New(ctx, sdkresource.WithAttributes(
		semconv.ServiceNameKey.String("murmel"),
	))
	if err != nil {
		return err
	}

	exporter, err := newExporter(ctx)
	if err != nil {
		return err
	}

	tp = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return nil
}

// newExporter picks the span exporter from the environment.
func newExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	endpoint := os.Getenv("MURMEL_OTEL_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint != "" {
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(endpoint),
		}
		if strings.ToLower(os.Getenv("MURMEL_OTEL_OTLP_INSECURE")) == "1" ||
			strings.ToLower(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")) == "true" {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	}

	if strings.ToLower(os.Getenv("MURMEL_OTEL_STDOUT")) == "1" {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}

	return nil, fmt.Errorf("no OTEL exporter configured: set MURMEL_OTEL_OTLP_ENDPOINT or MURMEL_OTEL_STDOUT=1")
}

// Flush shuts down the tracer provider, draining pending spans. Safe to
// call multiple times.
func Flush() {
	if tp == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = tp.Shutdown(ctx)
}
