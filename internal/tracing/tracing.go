// Package tracing sets up OpenTelemetry tracing for outbound provider calls.
package tracing

import (
	"context"
	"os"
	"strings"

	"github.com/dgellow/customer-auth/internal/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Environment variables read by Setup
const (
	EnvEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvEnabled  = "CUSTOMER_AUTH_TRACING_ENABLED"
)

// ShutdownFunc flushes pending spans
type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// Setup registers a global tracer provider exporting over OTLP/HTTP.
// Tracing is opt-in: without an endpoint, or with tracing explicitly
// disabled, Setup installs nothing and returns a no-op shutdown.
func Setup(ctx context.Context, serviceName, version string) (ShutdownFunc, error) {
	if strings.EqualFold(os.Getenv(EnvEnabled), "false") {
		return noop, nil
	}
	endpoint := os.Getenv(EnvEndpoint)
	if endpoint == "" {
		return noop, nil
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
	if err != nil {
		return noop, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.LogInfoWithFields("tracing", "Tracing enabled", map[string]any{
		"endpoint": endpoint,
		"service":  serviceName,
	})
	return tp.Shutdown, nil
}
