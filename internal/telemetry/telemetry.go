// Package telemetry configures OpenTelemetry tracing for a run. Spans are
// written as JSON lines to a trace file; without one, tracing is a no-op.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ServiceName identifies the process in exported spans.
const ServiceName = "vbmgrid"

// Config controls tracing.
type Config struct {
	// TraceFile receives the spans. Empty disables tracing.
	TraceFile string
	Version   string
}

// Provider owns the tracer provider and its output file.
type Provider struct {
	provider trace.TracerProvider
	sdk      *sdktrace.TracerProvider
	file     *os.File
}

// Setup creates the tracer provider described by cfg. The provider is not
// installed globally; callers hand Tracer() to the components that need it.
func Setup(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.TraceFile == "" {
		return &Provider{provider: noop.NewTracerProvider()}, nil
	}

	f, err := os.OpenFile(cfg.TraceFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(f))
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", ServiceName),
		attribute.String("service.version", cfg.Version),
	)
	// Spans are exported synchronously so that a crashed run still leaves
	// everything up to the crash in the file.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	)
	return &Provider{provider: tp, sdk: tp, file: f}, nil
}

// Tracer returns the tracer used for stage spans.
func (p *Provider) Tracer() trace.Tracer {
	return p.provider.Tracer(ServiceName)
}

// Shutdown flushes pending spans and closes the trace file.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.sdk == nil {
		return nil
	}
	var errs []error
	if err := p.sdk.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to shut down tracer provider: %w", err))
	}
	if err := p.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close trace file: %w", err))
	}
	return errors.Join(errs...)
}
