package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestInitTracerProvider(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), ServiceName, 1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := otel.Tracer("test").Start(context.Background(), "visit")
	defer span.End()
	require.True(t, span.SpanContext().IsValid())
	require.True(t, span.SpanContext().IsSampled())

	fields := otel.GetTextMapPropagator().Fields()
	require.Contains(t, fields, "traceparent")
}

func TestInitTracerProviderZeroRatio(t *testing.T) {
	tp, err := InitTracerProvider(context.Background(), ServiceName, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "visit")
	defer span.End()
	require.False(t, span.SpanContext().IsSampled())
}
