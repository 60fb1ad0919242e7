package monitoring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/turtacn/fincore-risk/internal/config"
	"github.com/turtacn/fincore-risk/pkg/logger"
)

func TestTracingManager_ExportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tm, err := NewTracingManagerWithExporter(&config.TracingConfig{
		ServiceName:  "fincore-risk-test",
		Environment:  "test",
		SamplingRate: 1,
	}, exporter, logger.NewNoopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tm.Shutdown(context.Background()) })

	_, span := tm.Tracer().Start(context.Background(), "risk.pass")
	span.SetAttributes(attribute.Int("profiles", 2))
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "risk.pass", spans[0].Name)
	assert.Contains(t, spans[0].Attributes, attribute.Int("profiles", 2))
	assert.Contains(t, spans[0].Resource.Attributes(), semconv.ServiceNameKey.String("fincore-risk-test"))
	assert.Contains(t, spans[0].Resource.Attributes(), attribute.String("environment", "test"))
}

func TestNewTracingManager_Disabled(t *testing.T) {
	tm, err := NewTracingManager(&config.TracingConfig{Enabled: false}, logger.NewNoopLogger())
	require.NoError(t, err)

	ctx, span := tm.Tracer().Start(context.Background(), "noop")
	defer span.End()
	assert.NoError(t, tm.Shutdown(ctx))
}
