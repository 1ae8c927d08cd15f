package telemetry

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the OpenTelemetry provider.
type ProviderConfig struct {
	// ServiceName defaults to OTEL_SERVICE_NAME, then "taskparty".
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP endpoint (e.g. "localhost:4317").
	// If empty, uses OTEL_EXPORTER_OTLP_ENDPOINT.
	Endpoint string

	// Protocol is "grpc" (default) or "http".
	Protocol string

	Insecure     bool
	BatchTimeout time.Duration
}

// Provider owns the SDK tracer provider.
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer *Tracer
}

// InitProvider installs an OTLP-exporting tracer provider globally.
// The returned Provider must be shut down when done.
func InitProvider(ctx context.Context, cfg ProviderConfig) (*Provider, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("telemetry endpoint not configured (set endpoint or OTEL_EXPORTER_OTLP_ENDPOINT)")
	}
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = os.Getenv("OTEL_SERVICE_NAME")
	}
	if serviceName == "" {
		serviceName = "taskparty"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	exporter, err := newSpanExporter(ctx, cfg.Protocol, endpoint, cfg.Insecure)
	if err != nil {
		return nil, err
	}

	var batchOpts []sdktrace.BatchSpanProcessorOption
	if cfg.BatchTimeout > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(cfg.BatchTimeout))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, batchOpts...),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	tracer := NewTracerFromProvider(tp, serviceName)
	SetGlobalTracer(tracer)

	return &Provider{tp: tp, tracer: tracer}, nil
}

func newSpanExporter(ctx context.Context, protocol, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch protocol {
	case "grpc", "":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown protocol: %s (use 'grpc' or 'http')", protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}
	return exporter, nil
}

// Tracer returns the tracer for this provider.
func (p *Provider) Tracer() *Tracer {
	return p.tracer
}

// Shutdown flushes pending spans and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.tp.Shutdown(ctx)
}
