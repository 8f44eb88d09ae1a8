package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Aleph-Alpha/schema-registry/v1/logger"
)

func newRecordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewWithProvider(tp, logger.NewNop()), recorder
}

func TestStartSpanAndAttributes(t *testing.T) {
	tr, recorder := newRecordingTracer(t)

	ctx, span := tr.StartSpan(context.Background(), "registry.CreateOrUpdate")
	tr.SetAttributes(span, map[string]interface{}{
		"artifact.id": "orders",
		"version":     3,
		"normalize":   true,
		"other":       []string{"x"},
	})
	tr.RecordErrorOnSpan(span, errors.New("boom"))
	span.End()

	_, child := tr.StartSpan(ctx, "child")
	child.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)

	parent := spans[0]
	assert.Equal(t, "registry.CreateOrUpdate", parent.Name())
	assert.Equal(t, codes.Error, parent.Status().Code)
	assert.Contains(t, parent.Attributes(), attribute.String("artifact.id", "orders"))
	assert.Contains(t, parent.Attributes(), attribute.Int("version", 3))
	assert.Contains(t, parent.Attributes(), attribute.Bool("normalize", true))
	assert.Contains(t, parent.Attributes(), attribute.String("other", "[x]"))

	assert.Equal(t, parent.SpanContext().TraceID(), spans[1].SpanContext().TraceID())
	assert.Equal(t, parent.SpanContext().SpanID(), spans[1].Parent().SpanID())
}

func TestCarrierRoundTrip(t *testing.T) {
	tr, _ := newRecordingTracer(t)

	ctx, span := tr.StartSpan(context.Background(), "publish")
	defer span.End()

	carrier := tr.GetCarrier(ctx)
	require.Contains(t, carrier, "traceparent")

	restored := tr.SetCarrierOnContext(context.Background(), carrier)
	_, consumer := tr.StartSpan(restored, "consume")
	defer consumer.End()

	assert.Equal(t, span.SpanContext().TraceID(), consumer.SpanContext().TraceID())
}

func TestNewClientWithoutExport(t *testing.T) {
	tr, err := NewClient(Config{ServiceName: "schema-registry", AppEnv: "test"}, logger.NewNop())
	require.NoError(t, err)
	assert.NoError(t, tr.Shutdown(context.Background()))

	var nilTracer *Tracer
	assert.NoError(t, nilTracer.Shutdown(context.Background()))
}
