// Package tracing wires OpenTelemetry into a sweep: a root span per sweep,
// one span per level and one client span per upload, with optional W3C
// context propagation to the target service.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/torosent/sweepfire/internal/config"
)

// InstrumentationName names the tracer and the default service.
const InstrumentationName = "sweepfire"

type exporterFactory func(ctx context.Context, endpoint string, plaintext bool) (sdktrace.SpanExporter, error)

// exporters maps an OTLP protocol name to its exporter. "grpc" is the default.
var exporters = map[string]exporterFactory{
	"grpc": func(ctx context.Context, endpoint string, plaintext bool) (sdktrace.SpanExporter, error) {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if plaintext {
			opts = append(opts,
				otlptracegrpc.WithInsecure(),
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
			)
		}
		return otlptracegrpc.New(ctx, opts...)
	},
	"http": func(ctx context.Context, endpoint string, plaintext bool) (sdktrace.SpanExporter, error) {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if plaintext {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	},
}

// Provider owns the tracer provider for the lifetime of a sweep.
// The zero value and a nil *Provider are disabled.
type Provider struct {
	tp        *sdktrace.TracerProvider
	propagate bool
}

// Init builds a provider from cfg. Without an endpoint, in cfg or in
// OTEL_EXPORTER_OTLP_ENDPOINT, the returned provider is disabled.
func Init(ctx context.Context, cfg config.TracingConfig) (*Provider, error) {
	if cfg.SampleRate < 0 || cfg.SampleRate > 1 {
		return nil, fmt.Errorf("tracing sample rate must be between 0.0 and 1.0, got %g", cfg.SampleRate)
	}
	endpoint := firstNonEmpty(cfg.Endpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return &Provider{}, nil
	}

	protocol := firstNonEmpty(strings.ToLower(cfg.Protocol), "grpc")
	factory, ok := exporters[protocol]
	if !ok {
		return nil, fmt.Errorf("tracing exporter: unsupported OTLP protocol %q: use \"grpc\" or \"http\"", cfg.Protocol)
	}
	exporter, err := factory(ctx, endpoint, cfg.Insecure)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	service := firstNonEmpty(cfg.ServiceName, os.Getenv("OTEL_SERVICE_NAME"), InstrumentationName)
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(service)))
	if err != nil {
		_ = exporter.Shutdown(ctx)
		return nil, fmt.Errorf("tracing resource: %w", err)
	}

	// A zero rate means unset and samples everything.
	sampler := sdktrace.AlwaysSample()
	if cfg.SampleRate > 0 && cfg.SampleRate < 1 {
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp, propagate: cfg.ShouldPropagate()}, nil
}

// Tracer returns the exporting tracer, or a no-op tracer when disabled.
func (p *Provider) Tracer() trace.Tracer {
	if !p.Enabled() {
		return noop.NewTracerProvider().Tracer(InstrumentationName)
	}
	return p.tp.Tracer(InstrumentationName)
}

// Enabled reports whether spans are exported.
func (p *Provider) Enabled() bool { return p != nil && p.tp != nil }

// ShouldPropagate reports whether trace headers go out with each upload.
func (p *Provider) ShouldPropagate() bool { return p.Enabled() && p.propagate }

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if !p.Enabled() {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
