package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/crosslist/backend/internal/infrastructure/telemetry"
)

const unmatchedRoute = "unmatched"

// RequestSizeBuckets span JSON bodies up to multi-image uploads (bytes)
var RequestSizeBuckets = []float64{256, 1 << 10, 8 << 10, 64 << 10, 512 << 10, 1 << 20, 4 << 20, 10 << 20, 20 << 20}

type httpInstruments struct {
	requests    *telemetry.Counter
	duration    *telemetry.Histogram
	requestSize *telemetry.Histogram
	inFlight    metric.Int64UpDownCounter
}

func newHTTPInstruments(meter metric.Meter) (*httpInstruments, error) {
	requests, err := telemetry.NewCounter(meter, "crosslist.http.requests", "Completed API requests", "{request}")
	if err != nil {
		return nil, err
	}
	duration, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "crosslist.http.request.duration",
		Description: "API request latency",
		Unit:        "s",
		Boundaries:  telemetry.HTTPDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	requestSize, err := telemetry.NewHistogram(meter, telemetry.HistogramOpts{
		Name:        "crosslist.http.request.body.size",
		Description: "Declared request body size",
		Unit:        "By",
		Boundaries:  RequestSizeBuckets,
	})
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter("crosslist.http.requests.in_flight",
		metric.WithDescription("API requests being served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}
	return &httpInstruments{requests: requests, duration: duration, requestSize: requestSize, inFlight: inFlight}, nil
}

// HTTPMetrics records API traffic per route. A nil or disabled provider
// yields a pass-through middleware.
func HTTPMetrics(mp *telemetry.MeterProvider, skipPaths ...string) gin.HandlerFunc {
	if mp == nil || !mp.IsEnabled() {
		return passThrough
	}
	return HTTPMetricsWithMeter(mp.Meter("crosslist/http"), skipPaths...)
}

// HTTPMetricsWithMeter records per-route counts, latency and body sizes on
// meter. Requests whose path ends in one of skipPaths are not counted.
func HTTPMetricsWithMeter(meter metric.Meter, skipPaths ...string) gin.HandlerFunc {
	inst, err := newHTTPInstruments(meter)
	if err != nil {
		return passThrough
	}

	return func(c *gin.Context) {
		for _, suffix := range skipPaths {
			if strings.HasSuffix(c.Request.URL.Path, suffix) {
				c.Next()
				return
			}
		}

		ctx := c.Request.Context()
		start := time.Now()
		inst.inFlight.Add(ctx, 1)
		c.Next()
		inst.inFlight.Add(ctx, -1)

		route := telemetry.AttrHTTPRoute.String(routePattern(c))
		method := telemetry.AttrHTTPMethod.String(c.Request.Method)
		inst.duration.RecordDuration(ctx, time.Since(start), method, route)
		if c.Request.ContentLength > 0 {
			inst.requestSize.Record(ctx, float64(c.Request.ContentLength), method, route)
		}

		attrs := []attribute.KeyValue{method, route, telemetry.AttrHTTPStatusCode.Int(c.Writer.Status())}
		if code := c.GetString(ErrorCodeKey); code != "" {
			attrs = append(attrs, attribute.String("error.code", code))
		}
		inst.requests.Inc(ctx, attrs...)
	}
}

// routePattern keeps ids out of metric labels
func routePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return unmatchedRoute
}

func passThrough(c *gin.Context) {
	c.Next()
}
