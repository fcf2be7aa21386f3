// Package tracing sets up OpenTelemetry for the registry server.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const DefaultServiceName = "oeuvre"

// Config configures tracing.
type Config struct {
	// Enabled controls whether tracing is active. When false a no-op tracer
	// is used.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Exporter is one of "none", "stdout", "otlp".
	Exporter string `yaml:"exporter" json:"exporter"`

	// Endpoint is the OTLP collector address for the "otlp" exporter.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// SampleRate is the fraction of root traces sampled. <= 0 means 1.
	SampleRate float64 `yaml:"sample_rate" json:"sample_rate"`

	ServiceName string `yaml:"service_name" json:"service_name"`
}

func DefaultConfig() Config {
	return Config{
		Enabled:     false,
		Exporter:    "none",
		Endpoint:    "localhost:4317",
		SampleRate:  1.0,
		ServiceName: DefaultServiceName,
	}
}

// Validate reports configuration errors without opening anything.
func (c Config) Validate() error {
	switch c.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		return fmt.Errorf("tracing: unsupported exporter %q", c.Exporter)
	}
	if c.SampleRate > 1 {
		return fmt.Errorf("tracing: sample_rate %v is above 1", c.SampleRate)
	}
	return nil
}

// Provider wraps the SDK tracer provider.
type Provider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	enabled  bool
}

// NewProvider builds a provider from cfg and installs it as the global
// provider. A disabled config yields a no-op tracer.
func NewProvider(cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer("noop")}, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
	case "otlp":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		exporter, err = otlptracegrpc.New(
			context.Background(),
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("create otlp exporter: %w", err)
		}
	}
	var opts []sdktrace.TracerProviderOption
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	p := newProvider(cfg, opts...)
	otel.SetTracerProvider(p.provider)
	return p, nil
}

// NewProviderWithSyncer builds an enabled provider that exports spans
// synchronously to exp. It does not touch the global provider.
func NewProviderWithSyncer(cfg Config, exp sdktrace.SpanExporter) *Provider {
	return newProvider(cfg, sdktrace.WithSyncer(exp))
}

func newProvider(cfg Config, extra ...sdktrace.TracerProviderOption) *Provider {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = 1.0
	}
	opts := []sdktrace.TracerProviderOption{
		// Schemaless avoids schema URL conflicts with resource.Default().
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", name))),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	}
	provider := sdktrace.NewTracerProvider(append(opts, extra...)...)
	return &Provider{provider: provider, tracer: provider.Tracer(name), enabled: true}
}

// Tracer is safe to use when tracing is disabled.
func (p *Provider) Tracer() trace.Tracer { return p.tracer }

func (p *Provider) Enabled() bool { return p.enabled }

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.provider != nil {
		return p.provider.Shutdown(ctx)
	}
	return nil
}
