package tracing

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
)

func TestNewTracer_Disabled(t *testing.T) {
	tracer, err := NewTracer(ServiceName, false, "")
	require.NoError(t, err)

	ctx, span := tracer.StartSpan(context.Background(), "summary")
	assert.False(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
	span.End()

	assert.NoError(t, tracer.Shutdown(context.Background()))
}

func TestTracer_WritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tracer, err := newTracerWithWriter(ServiceName, &buf, nil)
	require.NoError(t, err)

	ctx, span := tracer.StartSpanWithAttributes(context.Background(), "batch", BatchAttrs("summary", "004")...)
	assert.True(t, trace.SpanFromContext(ctx).SpanContext().IsValid())
	SetSpanError(ctx, errors.New("no alignment hits"))
	span.End()

	require.NoError(t, tracer.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name":"batch"`)
	assert.Contains(t, buf.String(), "batch.id")
	assert.Contains(t, buf.String(), "no alignment hits")
}
