package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	ServiceName    = "blastsum"
	ServiceVersion = "1.0.0"
)

// Tracer holds the tracer instance. A disabled tracer hands out noop spans.
type Tracer struct {
	tracer trace.Tracer
	tp     *sdktrace.TracerProvider
	out    io.Closer
}

// NewTracer creates a tracer that writes spans as JSON to output ("" or "-"
// meaning stderr). When enabled is false every span is a noop.
func NewTracer(serviceName string, enabled bool, output string) (*Tracer, error) {
	if !enabled {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(serviceName)}, nil
	}

	var w io.Writer = os.Stderr
	var closer io.Closer
	if output != "" && output != "-" {
		f, err := os.Create(output)
		if err != nil {
			return nil, fmt.Errorf("failed to open trace output: %w", err)
		}
		w, closer = f, f
	}

	return newTracerWithWriter(serviceName, w, closer)
}

func newTracerWithWriter(serviceName string, w io.Writer, closer io.Closer) (*Tracer, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", ServiceVersion),
	)

	// Syncer rather than batcher: the run is short and single threaded
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(res),
	)

	return &Tracer{
		tracer: tp.Tracer(serviceName),
		tp:     tp,
		out:    closer,
	}, nil
}

// StartSpan starts a new span with the provided name
func (t *Tracer) StartSpan(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, opts...)
}

// StartSpanWithAttributes starts a new span with the provided attributes
func (t *Tracer) StartSpanWithAttributes(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// AddAttributes adds attributes to the current span
func AddAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.SetAttributes(attrs...)
	}
}

// SetSpanError records err on the current span and marks it failed
func SetSpanError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// Shutdown flushes the provider and closes the output file, if any
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.tp == nil {
		return nil
	}
	if err := t.tp.Shutdown(ctx); err != nil {
		return err
	}
	if t.out != nil {
		return t.out.Close()
	}
	return nil
}

// BatchAttrs returns common attributes for per-batch spans
func BatchAttrs(stage, batch string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("component", stage),
		attribute.String("batch.id", batch),
	}
}
