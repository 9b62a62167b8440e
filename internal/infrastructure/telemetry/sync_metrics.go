package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrMeterNil is returned when a meter is required but missing
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")

// SyncMetrics records one observation per processed (item, marketplace)
// pair. It satisfies the orchestrator's SyncRecorder.
type SyncMetrics struct {
	pairs    *Counter
	duration *Histogram
	attempts *Histogram
}

// NewSyncMetrics creates the sync instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}
	pairs, err := NewCounter(meter, "crosslist.sync.pairs", "Processed item/marketplace pairs", "{pair}")
	if err != nil {
		return nil, err
	}
	duration, err := NewHistogram(meter, HistogramOpts{
		Name:        "crosslist.sync.duration",
		Description: "Time spent on one pair including retries",
		Unit:        "s",
		Boundaries:  SyncDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	attempts, err := NewHistogram(meter, HistogramOpts{
		Name:        "crosslist.sync.attempts",
		Description: "Adapter calls made for one pair",
		Unit:        "{attempt}",
		Boundaries:  []float64{1, 2, 3, 4, 5, 8},
	})
	if err != nil {
		return nil, err
	}
	return &SyncMetrics{pairs: pairs, duration: duration, attempts: attempts}, nil
}

// RecordSync records the outcome of one pair
func (m *SyncMetrics) RecordSync(ctx context.Context, marketplace, action, outcome string, attempts int, elapsed time.Duration) {
	attrs := []attribute.KeyValue{
		AttrMarketplace.String(marketplace),
		AttrAction.String(action),
		AttrOutcome.String(outcome),
	}
	m.pairs.Inc(ctx, attrs...)
	m.duration.RecordDuration(ctx, elapsed, attrs...)
	if attempts > 0 {
		m.attempts.Record(ctx, float64(attempts), attrs[:2]...)
	}
}
