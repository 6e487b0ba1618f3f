// internal/scenario/tracing.go
package scenario

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const tracerName = "github.com/cmux-cli/uiverify/internal/scenario"

// Span attribute keys.
var (
	AttrScenario   = attribute.Key("uiverify.scenario")
	AttrRunID      = attribute.Key("uiverify.run_id")
	AttrStepPath   = attribute.Key("uiverify.step.path")
	AttrStepKind   = attribute.Key("uiverify.step.kind")
	AttrDescriptor = attribute.Key("uiverify.step.descriptor")
	AttrStatus     = attribute.Key("uiverify.status")
)

// TracerProvider exports scenario and step spans as JSON lines.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
}

// NewTracerProvider creates a provider that writes spans to w.
func NewTracerProvider(w io.Writer, version string) (*TracerProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", "uiverify"),
		attribute.String("service.version", version),
	)
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return &TracerProvider{provider: provider}, nil
}

// Tracer returns the tracer the runner uses.
func (tp *TracerProvider) Tracer() trace.Tracer {
	if tp == nil {
		return noop.NewTracerProvider().Tracer(tracerName)
	}
	return tp.provider.Tracer(tracerName)
}

// Shutdown flushes pending spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}
