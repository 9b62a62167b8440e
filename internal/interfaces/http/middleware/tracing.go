// Package middleware provides HTTP middleware for the crosslist API.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxRequestIDLength caps request ids copied from headers into spans
const MaxRequestIDLength = 128

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// SkipPaths are URL path suffixes never traced, such as probes.
	SkipPaths []string
}

// DefaultTracingConfig returns default tracing configuration.
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		ServiceName: "crosslist-backend",
		Enabled:     true,
		SkipPaths:   []string{"/health", "/system/ping"},
	}
}

// Tracing wraps otelgin. Spans are named "METHOD route".
func Tracing(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return passThrough
	}
	skip := cfg.SkipPaths
	return otelgin.Middleware(cfg.ServiceName,
		otelgin.WithFilter(func(r *http.Request) bool {
			for _, suffix := range skip {
				if strings.HasSuffix(r.URL.Path, suffix) {
					return false
				}
			}
			return true
		}),
	)
}

// SpanAttributes tags the server span with the request id and the
// resources named in the route. Server errors mark the span failed;
// 4xx responses are the caller's problem and stay unset.
// Must run after Tracing and RequestID.
func SpanAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}
		span.SetAttributes(routeAttributes(c)...)

		c.Next()

		status := c.Writer.Status()
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
		if code, ok := c.Get(ErrorCodeKey); ok {
			if s, isString := code.(string); isString && s != "" {
				span.SetAttributes(attribute.String("error.code", s))
			}
		}
	}
}

func routeAttributes(c *gin.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if requestID := requestIDFrom(c); requestID != "" {
		attrs = append(attrs, attribute.String("request_id", requestID))
	}
	if id := c.Param("id"); id != "" {
		key := "item.id"
		if strings.Contains(c.FullPath(), "/sync-jobs/") {
			key = "sync_job.id"
		}
		attrs = append(attrs, attribute.String(key, id))
	}
	if id := c.Param("image_id"); id != "" {
		attrs = append(attrs, attribute.String("image.id", id))
	}
	if code := c.Param("marketplace"); code != "" {
		attrs = append(attrs, attribute.String("marketplace", strings.ToUpper(code)))
	} else if strings.Contains(c.FullPath(), "/marketplaces/ebay/") {
		attrs = append(attrs, attribute.String("marketplace", "EBAY"))
	} else if strings.Contains(c.FullPath(), "/marketplaces/poshmark/") {
		attrs = append(attrs, attribute.String("marketplace", "POSHMARK"))
	}
	return attrs
}

// requestIDFrom returns the id set by RequestID, falling back to the
// truncated header
func requestIDFrom(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	headerID := c.GetHeader(RequestIDHeader)
	if len(headerID) > MaxRequestIDLength {
		return headerID[:MaxRequestIDLength]
	}
	return headerID
}
