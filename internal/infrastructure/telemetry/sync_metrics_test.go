package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestNewSyncMetrics_NilMeter(t *testing.T) {
	m, err := NewSyncMetrics(nil)
	assert.ErrorIs(t, err, ErrMeterNil)
	assert.Nil(t, m)
}

func TestSyncMetrics_RecordSync(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := NewSyncMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordSync(ctx, "EBAY", "PUBLISH", "ACTIVE", 1, 300*time.Millisecond)
	m.RecordSync(ctx, "EBAY", "PUBLISH", "ACTIVE", 2, 2*time.Second)
	m.RecordSync(ctx, "POSHMARK", "PUBLISH", "FAILED", 1, 40*time.Second)

	got := collect(t, reader)

	pairs, ok := got["crosslist.sync.pairs"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	counts := make(map[string]int64)
	for _, dp := range pairs.DataPoints {
		mp, _ := dp.Attributes.Value(attribute.Key("marketplace"))
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		counts[mp.AsString()+"/"+outcome.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"EBAY/ACTIVE": 2, "POSHMARK/FAILED": 1}, counts)

	duration, ok := got["crosslist.sync.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var total uint64
	for _, dp := range duration.DataPoints {
		total += dp.Count
	}
	assert.Equal(t, uint64(3), total)

	attempts, ok := got["crosslist.sync.attempts"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var sum float64
	for _, dp := range attempts.DataPoints {
		sum += dp.Sum
	}
	assert.Equal(t, 4.0, sum)
}
