package dto

import (
	"net/http"
	"strings"
)

// Error codes carried in the response envelope. Format: ERR_<DESCRIPTION>.
const (
	ErrCodeInternal = "ERR_INTERNAL"

	// request shape
	ErrCodeBadRequest       = "ERR_BAD_REQUEST"
	ErrCodeInvalidJSON      = "ERR_INVALID_JSON"
	ErrCodeInvalidInput     = "ERR_INVALID_INPUT"
	ErrCodeValidation       = "ERR_VALIDATION"
	ErrCodePayloadTooLarge  = "ERR_PAYLOAD_TOO_LARGE"
	ErrCodeUnsupportedMedia = "ERR_UNSUPPORTED_MEDIA"

	// resources
	ErrCodeNotFound = "ERR_NOT_FOUND"
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeInvalidState is used when the listing or account state does not allow the operation
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeNotConfigured is used when a marketplace or storage backend is not set up
	ErrCodeNotConfigured = "ERR_NOT_CONFIGURED"

	// capacity and upstream
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
	ErrCodeQueueFull   = "ERR_QUEUE_FULL"
	// ErrCodeUpstream is used when a marketplace call failed transiently
	ErrCodeUpstream = "ERR_UPSTREAM"
)

const errCodePrefix = "ERR_"

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal: http.StatusInternalServerError,

	ErrCodeBadRequest:       http.StatusBadRequest,
	ErrCodeInvalidJSON:      http.StatusBadRequest,
	ErrCodeInvalidInput:     http.StatusBadRequest,
	ErrCodeValidation:       http.StatusBadRequest,
	ErrCodePayloadTooLarge:  http.StatusRequestEntityTooLarge,
	ErrCodeUnsupportedMedia: http.StatusUnsupportedMediaType,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeConflict:      http.StatusConflict,
	ErrCodeInvalidState:  http.StatusUnprocessableEntity,
	ErrCodeNotConfigured: http.StatusServiceUnavailable,

	ErrCodeRateLimited: http.StatusTooManyRequests,
	ErrCodeQueueFull:   http.StatusServiceUnavailable,
	ErrCodeUpstream:    http.StatusBadGateway,
}

// retryableCodes are the codes a client may resend the same request for
var retryableCodes = map[string]bool{
	ErrCodeRateLimited: true,
	ErrCodeQueueFull:   true,
	ErrCodeUpstream:    true,
}

// GetHTTPStatus returns the HTTP status for a code, 500 for unknown codes
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether the same request may succeed later
func IsRetryable(code string) bool {
	return retryableCodes[code]
}

// NormalizeErrorCode upper-cases a code and adds the ERR_ prefix when that
// yields a known code ("not_found" becomes ERR_NOT_FOUND). Unknown codes are
// returned unchanged.
func NormalizeErrorCode(code string) string {
	upper := strings.ToUpper(strings.TrimSpace(code))
	if _, ok := ErrorCodeHTTPStatus[upper]; ok {
		return upper
	}
	if prefixed := errCodePrefix + upper; !strings.HasPrefix(upper, errCodePrefix) {
		if _, ok := ErrorCodeHTTPStatus[prefixed]; ok {
			return prefixed
		}
	}
	return code
}
