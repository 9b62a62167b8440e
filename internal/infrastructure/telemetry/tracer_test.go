package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap/zaptest"

	infraconfig "github.com/crosslist/backend/internal/infrastructure/config"
	"github.com/crosslist/backend/internal/infrastructure/telemetry"
)

func TestNewConfig(t *testing.T) {
	cfg := telemetry.NewConfig(infraconfig.TelemetryConfig{
		Enabled:           true,
		CollectorEndpoint: "otel:4317",
		SamplingRatio:     0.5,
		ServiceName:       "crosslist-backend",
		Insecure:          true,
	}, "1.2.3")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "otel:4317", cfg.CollectorEndpoint)
	assert.Equal(t, 0.5, cfg.SamplingRatio)
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.True(t, cfg.Insecure)
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{ServiceName: "test-service", SamplingRatio: 1.0}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("test"))
	assert.NotNil(t, tp.TracerProvider())
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestNewTracerProvider_WithSpanProcessor(t *testing.T) {
	ctx := context.Background()
	sr := tracetest.NewSpanRecorder()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{ServiceName: "crosslist-test", SamplingRatio: 1.0},
		zaptest.NewLogger(t), telemetry.WithSpanProcessor(sr))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })
	require.True(t, tp.IsEnabled())

	_, span := tp.Tracer("test").Start(ctx, "sync.publish")
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "sync.publish", spans[0].Name())
	assert.Equal(t, "crosslist-test", serviceName(spans[0].Resource().Attributes()))
}

func TestNewTracerProvider_ZeroRatioDropsRootSpans(t *testing.T) {
	ctx := context.Background()
	sr := tracetest.NewSpanRecorder()

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.Config{ServiceName: "crosslist-test"},
		zaptest.NewLogger(t), telemetry.WithSpanProcessor(sr))
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(ctx) })

	_, span := tp.Tracer("test").Start(ctx, "sync.publish")
	assert.False(t, span.IsRecording())
	span.End()
	assert.Empty(t, sr.Ended())
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.Shutdown(ctx))
}

func serviceName(attrs []attribute.KeyValue) string {
	for _, kv := range attrs {
		if kv.Key == semconv.ServiceNameKey {
			return kv.Value.AsString()
		}
	}
	return ""
}
