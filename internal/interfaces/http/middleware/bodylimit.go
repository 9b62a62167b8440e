package middleware

import (
	"mime"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/crosslist/backend/internal/interfaces/http/dto"
)

// BodyLimitOption adjusts BodyLimit
type BodyLimitOption func(*bodyLimits)

type bodyLimits struct {
	fallback    int64
	byMediaType map[string]int64
}

// WithContentTypeLimit applies maxBytes to requests whose Content-Type media
// type equals mediaType, e.g. a small cap for application/json next to a
// larger default for multipart image uploads.
func WithContentTypeLimit(mediaType string, maxBytes int64) BodyLimitOption {
	return func(l *bodyLimits) {
		if maxBytes > 0 {
			l.byMediaType[strings.ToLower(mediaType)] = maxBytes
		}
	}
}

func (l *bodyLimits) limitFor(contentType string) int64 {
	if contentType != "" {
		if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
			if limit, ok := l.byMediaType[mediaType]; ok {
				return limit
			}
		}
	}
	return l.fallback
}

// BodyLimit rejects bodies larger than maxBytes, or the per media type limit when one matches
func BodyLimit(maxBytes int64, opts ...BodyLimitOption) gin.HandlerFunc {
	limits := &bodyLimits{fallback: maxBytes, byMediaType: make(map[string]int64)}
	for _, opt := range opts {
		opt(limits)
	}

	return func(c *gin.Context) {
		if c.Request.Body == nil || c.Request.Body == http.NoBody {
			c.Next()
			return
		}

		limit := limits.limitFor(c.GetHeader("Content-Type"))
		if c.Request.ContentLength > limit {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
				dto.ErrCodePayloadTooLarge,
				"Request body exceeds maximum allowed size",
				c.GetString(RequestIDKey),
			))
			return
		}

		// bodies without Content-Length are cut off while reading
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}
