// AngelaMos | 2026
// telemetry_test.go

package core

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

	"github.com/carterperez-dev/templates/users-service/internal/config"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tel := installProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec)))
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })
	return rec
}

func attr(span sdktrace.ReadOnlySpan, key attribute.Key) string {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestEndSpan(t *testing.T) {
	rec := recordSpans(t)

	_, ok := StartSpan(context.Background(), "auth.login")
	EndSpan(ok, nil)

	_, rejected := StartSpan(context.Background(), "auth.login")
	EndSpan(rejected, ErrUnauthorized)

	_, broken := StartSpan(context.Background(), "auth.login")
	EndSpan(broken, errors.New("connection reset"))

	spans := rec.Ended()
	require.Len(t, spans, 3)

	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Empty(t, attr(spans[0], "error.kind"))

	assert.Equal(t, KindUnauthorized, attr(spans[1], "error.kind"))
	assert.Equal(t, codes.Unset, spans[1].Status().Code)

	assert.Equal(t, KindInternal, attr(spans[2], "error.kind"))
	assert.Equal(t, codes.Error, spans[2].Status().Code)
}

func TestTraceIDFromContext(t *testing.T) {
	recordSpans(t)

	assert.Empty(t, TraceIDFromContext(context.Background()))

	ctx, span := StartSpan(context.Background(), "request")
	defer span.End()
	assert.Len(t, TraceIDFromContext(ctx), 32)
}

func TestNewTelemetry_Disabled(t *testing.T) {
	tel, err := NewTelemetry(context.Background(), config.OtelConfig{Enabled: false}, config.AppConfig{})
	require.NoError(t, err)
	assert.Nil(t, tel)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "0.1")
	assert.Contains(t, sampler(2).Description(), "0.1")
	assert.Contains(t, sampler(0.5).Description(), "0.5")
}
