package logger

import (
	"context"
	"testing"

	"github.com/farmerp/backend/internal/domain/shared"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func fieldMap(entry observer.LoggedEntry) map[string]any {
	return entry.ContextMap()
}

func TestFromContext_DefaultsToNop(t *testing.T) {
	l := FromContext(context.Background())
	require.NotNil(t, l)
	l.Info("dropped")
}

func TestWithRequestID(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	ctx, l := WithRequestID(context.Background(), zap.New(core), "req-42")
	l.Info("hello")

	assert.Equal(t, "req-42", GetRequestID(ctx))
	assert.Same(t, l, FromContext(ctx))
	require.Len(t, recorded.All(), 1)
	assert.Equal(t, "req-42", fieldMap(recorded.All()[0])["request_id"])
}

func TestWithScope(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)

	ctx, l := WithScope(context.Background(), zap.New(core), "farm:abc")
	l.Info("scoped")

	assert.Equal(t, "farm:abc", GetScope(ctx))
	assert.Equal(t, "farm:abc", fieldMap(recorded.All()[0])["scope"])
	assert.Empty(t, GetScope(context.Background()))
}

func TestWithTraceContext(t *testing.T) {
	base := zap.NewNop()
	assert.Same(t, base, WithTraceContext(context.Background(), base))

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	core, recorded := observer.New(zapcore.InfoLevel)
	WithTraceContext(ctx, zap.New(core)).Info("traced")

	fields := fieldMap(recorded.All()[0])
	assert.Equal(t, span.SpanContext().TraceID().String(), fields["trace_id"])
	assert.Equal(t, span.SpanContext().SpanID().String(), fields["span_id"])
}

func TestContextLogger_EnrichesEntries(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	actor := uuid.New()

	ctx := shared.WithActorID(context.Background(), actor)
	ctx, _ = WithRequestID(ctx, zap.New(core), "req-7")
	ctx, _ = WithScope(ctx, FromContext(ctx), "record:stock_ledger:1")

	L(ctx).With(zap.String("kind", "wrong_amount_in")).Warn("finding")

	require.Len(t, recorded.All(), 1)
	fields := fieldMap(recorded.All()[0])
	assert.Equal(t, actor.String(), fields["actor_id"])
	assert.Equal(t, "wrong_amount_in", fields["kind"])
	assert.Equal(t, "req-7", fields["request_id"])
}

func TestContextLogger_NilLogger(t *testing.T) {
	cl := WithLogger(context.Background(), nil)
	assert.NotPanics(t, func() {
		cl.Debug("d")
		cl.Info("i")
		cl.With(zap.Int("n", 1)).Error("e")
	})
	assert.NotNil(t, cl.Zap())
}
