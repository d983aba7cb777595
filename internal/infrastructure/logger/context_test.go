package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithRequestID(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx, l := WithRequestID(context.Background(), zap.New(core), "req-1")

	l.Info("direct")
	L(ctx).Info("from context")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	require.Equal(t, 2, recorded.Len())
	for _, e := range recorded.All() {
		assert.Equal(t, "req-1", e.ContextMap()["request_id"])
	}
	assert.Equal(t, "", GetRequestID(context.Background()))
}

func TestL(t *testing.T) {
	t.Run("uses fallback when context has no logger", func(t *testing.T) {
		core, recorded := observer.New(zapcore.InfoLevel)
		L(context.Background(), zap.New(core)).Info("fallback")
		assert.Equal(t, 1, recorded.Len())
	})

	t.Run("context logger wins over fallback", func(t *testing.T) {
		ctxCore, ctxRecorded := observer.New(zapcore.InfoLevel)
		fbCore, fbRecorded := observer.New(zapcore.InfoLevel)
		ctx := WithContext(context.Background(), zap.New(ctxCore))

		L(ctx, zap.New(fbCore)).With(zap.String("op", "upload")).Warn("x")

		require.Equal(t, 1, ctxRecorded.Len())
		assert.Equal(t, 0, fbRecorded.Len())
		assert.Equal(t, "upload", ctxRecorded.All()[0].ContextMap()["op"])
	})

	t.Run("adds trace ids for active span", func(t *testing.T) {
		tp := sdktrace.NewTracerProvider()
		defer func() { _ = tp.Shutdown(context.Background()) }()

		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		defer span.End()

		core, recorded := observer.New(zapcore.DebugLevel)
		ctx = WithContext(ctx, zap.New(core))
		L(ctx).Debug("traced")

		fields := recorded.All()[0].ContextMap()
		assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
		assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
	})
}
