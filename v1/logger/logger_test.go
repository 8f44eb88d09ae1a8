package logger

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel(Debug))
	assert.Equal(t, zapcore.WarnLevel, parseLevel(Warning))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel(Error))
	assert.Equal(t, zapcore.InfoLevel, parseLevel(Info))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestLogger_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := New(zap.New(core), false)

	l.Error("lookup failed", errors.New("boom"), map[string]interface{}{"artifactId": "a"})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "lookup failed", entry.Message)
	fields := entry.ContextMap()
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, "a", fields["artifactId"])
}

func TestLogger_TraceFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := New(zap.New(core), true)

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.InfoWithContext(ctx, "traced", nil)
	l.InfoWithContext(context.Background(), "untraced", nil)

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, sc.TraceID().String(), logs.All()[0].ContextMap()["trace_id"])
	assert.Equal(t, sc.SpanID().String(), logs.All()[0].ContextMap()["span_id"])
	assert.NotContains(t, logs.All()[1].ContextMap(), "trace_id")
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Info("discarded", nil)
	l.Debug("discarded", nil, map[string]interface{}{"k": "v"})
}
