package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// quietPaths are polled by load balancers and only logged at debug level
var quietPaths = map[string]struct{}{
	"/api/v1/health":      {},
	"/api/v1/system/ping": {},
}

// GinMiddleware writes one access log line per request and stores a
// request-scoped logger in the request context for L. requestIDKey names
// the gin key the request id middleware writes.
func GinMiddleware(logger *zap.Logger, requestIDKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		reqLogger := logger.With(
			zap.String("method", c.Request.Method),
			zap.String("path", path),
		)
		ctx := WithContext(c.Request.Context(), reqLogger)
		ctx = WithRequestID(ctx, c.GetString(requestIDKey))
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if route := c.FullPath(); route != "" {
			fields = append(fields, zap.String("route", route))
		}
		if query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		access := WithLogger(c.Request.Context(), reqLogger)
		const msg = "HTTP Request"
		switch {
		case status >= http.StatusInternalServerError:
			access.Error(msg, fields...)
		case status >= http.StatusBadRequest:
			access.Warn(msg, fields...)
		default:
			if _, quiet := quietPaths[path]; quiet {
				access.Debug(msg, fields...)
				return
			}
			access.Info(msg, fields...)
		}
	}
}

// Recovery logs panics with their stack and hands the response to respond,
// which must abort the request.
func Recovery(logger *zap.Logger, respond gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				WithLogger(c.Request.Context(), logger).Error("Panic recovered",
					zap.String("method", c.Request.Method),
					zap.String("path", c.Request.URL.Path),
					zap.Any("panic", err),
					zap.Stack("stacktrace"),
				)
				respond(c)
			}
		}()
		c.Next()
	}
}
