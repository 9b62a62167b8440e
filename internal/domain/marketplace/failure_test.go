package marketplace

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncError_Is(t *testing.T) {
	tests := []struct {
		name     string
		err      *SyncError
		sentinel error
	}{
		{"rejected", Rejected(CodeInvalidRequest, "bad"), ErrRejectedByMarketplace},
		{"transient", Transient(CodeRateLimited, "slow down"), ErrTransient},
		{"not found", NotFound("gone"), ErrRemoteNotFound},
		{"mismatch", Mismatch(CodeUnexpectedPage, "no form"), ErrAutomationMismatch},
		{"unauthorized", Unauthorized("token revoked"), ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			wrapped := fmt.Errorf("sync: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.True(t, tt.err.Kind.IsValid())
		})
	}
}

func TestSyncError_OnlyTransientRetryable(t *testing.T) {
	assert.True(t, Transient(CodeServerError, "503").Retryable())
	assert.False(t, Rejected(CodeInvalidRequest, "400").Retryable())
	assert.False(t, NotFound("404").Retryable())
	assert.False(t, Mismatch(CodeUnexpectedPage, "?").Retryable())
	assert.False(t, Unauthorized("401").Retryable())

	var nilErr *SyncError
	assert.False(t, nilErr.Retryable())
}

func TestSyncError_Message(t *testing.T) {
	err := Rejected(CodeMissingPolicies, "policies for %s missing", "EBAY_US")
	assert.Equal(t, "REJECTED_BY_MARKETPLACE (MISSING_POLICIES): policies for EBAY_US missing", err.Error())
}

func TestAsSyncError(t *testing.T) {
	t.Run("Classified error passes through", func(t *testing.T) {
		orig := NotFound("gone")
		assert.Same(t, orig, AsSyncError(fmt.Errorf("wrap: %w", orig)))
	})

	t.Run("Raw error becomes transient", func(t *testing.T) {
		raw := errors.New("connection reset")
		se := AsSyncError(raw)
		require.NotNil(t, se)
		assert.Equal(t, FailureTransient, se.Kind)
		assert.ErrorIs(t, se, raw)
	})

	t.Run("Nil stays nil", func(t *testing.T) {
		assert.Nil(t, AsSyncError(nil))
	})
}

func TestSyncResult(t *testing.T) {
	ok := Succeeded(RemoteRef{ID: "R1"})
	assert.True(t, ok.IsSuccess())
	assert.Empty(t, ok.Kind())

	failed := Failed(Transient(CodeTimeout, "timeout"))
	assert.False(t, failed.IsSuccess())
	assert.Equal(t, FailureTransient, failed.Kind())

	empty := Failed(nil)
	assert.False(t, empty.IsSuccess())
	require.NotNil(t, empty.Err)
}
