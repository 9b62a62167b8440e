package marketplace

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// FailureKind is the classification every adapter failure carries
// ---------------------------------------------------------------------------

// FailureKind classifies why a marketplace operation did not succeed
type FailureKind string

const (
	// FailureRejected is a permanent rejection (validation, policy, auth exhausted)
	FailureRejected FailureKind = "REJECTED_BY_MARKETPLACE"
	// FailureTransient covers network blips, throttling and 5xx responses
	FailureTransient FailureKind = "TRANSIENT"
	// FailureNotFound means the remote listing no longer exists
	FailureNotFound FailureKind = "NOT_FOUND"
	// FailureAutomationMismatch means a browser flow hit an unexpected page
	FailureAutomationMismatch FailureKind = "AUTOMATION_MISMATCH"
	// FailureUnauthorized means credentials were refused
	FailureUnauthorized FailureKind = "UNAUTHORIZED"
)

// Sentinel errors matched by SyncError.Is
var (
	ErrRejectedByMarketplace = errors.New("marketplace: rejected by marketplace")
	ErrTransient             = errors.New("marketplace: transient failure")
	ErrRemoteNotFound        = errors.New("marketplace: remote listing not found")
	ErrAutomationMismatch    = errors.New("marketplace: automation mismatch")
	ErrUnauthorized          = errors.New("marketplace: unauthorized")
)

// IsValid returns true if the kind is part of the taxonomy
func (k FailureKind) IsValid() bool {
	return k.Sentinel() != nil
}

// Retryable reports whether the orchestrator may retry this kind automatically
func (k FailureKind) Retryable() bool {
	return k == FailureTransient
}

// String returns the string representation of the kind
func (k FailureKind) String() string {
	return string(k)
}

// Sentinel returns the package-level error for the kind
func (k FailureKind) Sentinel() error {
	switch k {
	case FailureRejected:
		return ErrRejectedByMarketplace
	case FailureTransient:
		return ErrTransient
	case FailureNotFound:
		return ErrRemoteNotFound
	case FailureAutomationMismatch:
		return ErrAutomationMismatch
	case FailureUnauthorized:
		return ErrUnauthorized
	default:
		return nil
	}
}

// ---------------------------------------------------------------------------
// SyncError
// ---------------------------------------------------------------------------

// Common failure codes. Codes refine a kind for operators; the kind decides
// the orchestrator's behavior.
const (
	CodeRateLimited      = "RATE_LIMITED"
	CodeServerError      = "SERVER_ERROR"
	CodeNetwork          = "NETWORK_ERROR"
	CodeTimeout          = "TIMEOUT"
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeAuthFailed       = "AUTH_FAILED"
	CodeAccountMissing   = "ACCOUNT_NOT_CONNECTED"
	CodeMissingPolicies  = "MISSING_POLICIES"
	CodeLoginFailed      = "LOGIN_FAILED"
	CodeBotChallenge     = "BOT_CHALLENGE"
	CodeUnexpectedPage   = "UNEXPECTED_PAGE"
	CodeListingGone      = "LISTING_GONE"
	CodeInvalidResponse  = "INVALID_RESPONSE"
	CodeMissingImages    = "MISSING_IMAGES"
	CodeSessionExhausted = "SESSION_UNAVAILABLE"
)

// SyncError is the classified failure returned across the adapter boundary
type SyncError struct {
	Kind    FailureKind
	Code    string
	Message string
	Cause   error
}

// NewSyncError creates a classified failure
func NewSyncError(kind FailureKind, code, message string) *SyncError {
	return &SyncError{Kind: kind, Code: code, Message: message}
}

// Error implements the error interface
func (e *SyncError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is matches the kind sentinel, so errors.Is(err, ErrTransient) works
func (e *SyncError) Is(target error) bool {
	return target != nil && target == e.Kind.Sentinel()
}

// Unwrap returns the underlying cause
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure may be retried automatically
func (e *SyncError) Retryable() bool {
	return e != nil && e.Kind.Retryable()
}

// WithCause attaches the underlying error
func (e *SyncError) WithCause(err error) *SyncError {
	e.Cause = err
	return e
}

// Rejected builds a permanent rejection
func Rejected(code, format string, args ...any) *SyncError {
	return NewSyncError(FailureRejected, code, fmt.Sprintf(format, args...))
}

// Transient builds a retryable failure
func Transient(code, format string, args ...any) *SyncError {
	return NewSyncError(FailureTransient, code, fmt.Sprintf(format, args...))
}

// NotFound builds a remote-listing-gone failure
func NotFound(format string, args ...any) *SyncError {
	return NewSyncError(FailureNotFound, CodeListingGone, fmt.Sprintf(format, args...))
}

// Mismatch builds a browser automation mismatch
func Mismatch(code, format string, args ...any) *SyncError {
	return NewSyncError(FailureAutomationMismatch, code, fmt.Sprintf(format, args...))
}

// Unauthorized builds a credential failure
func Unauthorized(format string, args ...any) *SyncError {
	return NewSyncError(FailureUnauthorized, CodeAuthFailed, fmt.Sprintf(format, args...))
}

// AsSyncError extracts a SyncError from err. Errors that carry no
// classification are reported as transient, since the adapter could not tell
// whether the marketplace saw the request.
func AsSyncError(err error) *SyncError {
	if err == nil {
		return nil
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se
	}
	return Transient(CodeNetwork, "%v", err).WithCause(err)
}
