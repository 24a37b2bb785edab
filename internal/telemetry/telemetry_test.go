package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.IsEnabled())
	assert.Nil(t, tel.LoggerProvider())
	assert.Equal(t, HealthStatus{Healthy: true}, tel.Health())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	require.NoError(t, tel.ForceFlush(context.Background()))
	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_NilConfigUsesDefaults(t *testing.T) {
	tel, err := New(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, tel.IsEnabled())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Protocol = "carrier-pigeon"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid telemetry config")
}

func TestNew_EnabledExportsSpans(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.MetricsEnabled = false

	exporter := tracetest.NewInMemoryExporter()
	tel, err := New(context.Background(), cfg, WithTraceOptions(WithTraceExporter(exporter)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	assert.True(t, tel.IsEnabled())
	assert.False(t, tel.Health().Degraded)

	_, span := tel.Tracer("ctxfuse/test").Start(context.Background(), "retrieval.get_context")
	span.SetAttributes(attribute.String("access_mode", "unified"))
	span.End()

	require.NoError(t, tel.ForceFlush(context.Background()))
	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "retrieval.get_context", spans[0].Name)
}

func TestShutdown_MarksUnhealthy(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.MetricsEnabled = false

	tel, err := New(context.Background(), cfg, WithTraceOptions(WithTraceExporter(tracetest.NewInMemoryExporter())))
	require.NoError(t, err)

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.IsEnabled())
	assert.False(t, tel.Health().Healthy)
}

func TestLoggerProvider(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.MetricsEnabled = false

	tel, err := New(context.Background(), cfg, WithTraceOptions(WithTraceExporter(tracetest.NewInMemoryExporter())))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	assert.NotNil(t, tel.LoggerProvider(), "enabled telemetry falls back to the global provider")

	lp := noop.NewLoggerProvider()
	tel.SetLoggerProvider(lp)
	assert.Equal(t, lp, tel.LoggerProvider())
}

func TestNilTelemetry(t *testing.T) {
	var tel *Telemetry

	assert.False(t, tel.IsEnabled())
	assert.Nil(t, tel.LoggerProvider())
	assert.True(t, tel.Health().Degraded)
	assert.NotNil(t, tel.Tracer("x"))
	assert.NotNil(t, tel.Meter("x"))
	assert.NoError(t, tel.Shutdown(context.Background()))
	assert.NoError(t, tel.ForceFlush(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
	var _ trace.Sampler = sampler(0.5)
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry()

	_, span := tt.Tracer("ctxfuse/test").Start(context.Background(), "vectorstore.vector_query")
	span.SetAttributes(attribute.String("namespace", "system-kb"), attribute.Int("top_k", 8))
	span.End()

	tt.AssertSpanExists(t, "vectorstore.vector_query")
	tt.AssertSpanAttribute(t, "vectorstore.vector_query", "namespace", "system-kb")
	tt.AssertSpanAttribute(t, "vectorstore.vector_query", "top_k", int64(8))
	assert.Nil(t, tt.SpanByName("missing"))

	counter, err := tt.Meter("ctxfuse/test").Int64Counter("ctxfuse.test.count")
	require.NoError(t, err)
	counter.Add(context.Background(), 3)

	assert.Equal(t, []string{"ctxfuse.test.count"}, tt.MetricNames(t))
}
