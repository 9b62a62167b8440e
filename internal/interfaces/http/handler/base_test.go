package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	marketplaceapp "github.com/crosslist/backend/internal/application/marketplace"
	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/scheduler"
	"github.com/crosslist/backend/internal/interfaces/http/dto"
	"github.com/crosslist/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name: "from context",
			setup: func(c *gin.Context) {
				c.Set(middleware.RequestIDKey, "ctx-request-id")
			},
			expectedID: "ctx-request-id",
		},
		{
			name: "from header when context empty",
			setup: func(c *gin.Context) {
				c.Request.Header.Set(middleware.RequestIDHeader, "header-request-id")
			},
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
		{
			name: "context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set(middleware.RequestIDKey, "ctx-id")
				c.Request.Header.Set(middleware.RequestIDHeader, "header-id")
			},
			expectedID: "ctx-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext()
			tt.setup(c)
			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestBaseHandlerSuccessResponses(t *testing.T) {
	h := &BaseHandler{}

	t.Run("success", func(t *testing.T) {
		c, w := newTestContext()
		h.Success(c, map[string]string{"key": "value"})
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, decodeResponse(t, w).Success)
	})

	t.Run("success with meta", func(t *testing.T) {
		c, w := newTestContext()
		h.SuccessWithMeta(c, []string{"a", "b"}, 100, 1, 10)
		resp := decodeResponse(t, w)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, int64(100), resp.Meta.Total)
	})

	t.Run("created", func(t *testing.T) {
		c, w := newTestContext()
		h.Created(c, map[string]string{"id": "123"})
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("accepted", func(t *testing.T) {
		c, w := newTestContext()
		h.Accepted(c, map[string]string{"job_id": "123"})
		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.True(t, decodeResponse(t, w).Success)
	})

	t.Run("no content", func(t *testing.T) {
		c, w := newTestContext()
		h.NoContent(c)
		c.Writer.WriteHeaderNow()
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Body.String())
	})
}

func TestBaseHandlerErrorMethods(t *testing.T) {
	tests := []struct {
		name         string
		method       func(*BaseHandler, *gin.Context)
		expectedCode int
		expectedErr  string
	}{
		{"BadRequest", func(h *BaseHandler, c *gin.Context) { h.BadRequest(c, "bad") }, http.StatusBadRequest, dto.ErrCodeBadRequest},
		{"NotFound", func(h *BaseHandler, c *gin.Context) { h.NotFound(c, "missing") }, http.StatusNotFound, dto.ErrCodeNotFound},
		{"InternalError", func(h *BaseHandler, c *gin.Context) { h.InternalError(c, "boom") }, http.StatusInternalServerError, dto.ErrCodeInternal},
		{"ErrorWithCode", func(h *BaseHandler, c *gin.Context) { h.ErrorWithCode(c, dto.ErrCodeQueueFull, "full") }, http.StatusServiceUnavailable, dto.ErrCodeQueueFull},
		{"ErrorWithCode legacy", func(h *BaseHandler, c *gin.Context) { h.ErrorWithCode(c, "INVALID_STATE", "nope") }, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext()
			c.Set(middleware.RequestIDKey, "req-1")

			tt.method(&BaseHandler{}, c)

			assert.Equal(t, tt.expectedCode, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedErr, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)
		})
	}
}

func TestBaseHandlerValidationError(t *testing.T) {
	c, w := newTestContext()
	c.Set(middleware.RequestIDKey, "val-req-456")

	(&BaseHandler{}).ValidationError(c, []dto.ValidationDetail{
		{Field: "title", Message: "This field is required"},
		{Field: "price", Message: "Must be greater than 0"},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "val-req-456", resp.Error.RequestID)
	assert.Len(t, resp.Error.Details, 2)
}

func TestBaseHandlerHandleError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		expectedCode int
		expectedErr  string
	}{
		{"item not found", marketplace.ErrItemNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"wrapped image not found", fmt.Errorf("remove image: %w", marketplace.ErrImageNotFound), http.StatusNotFound, dto.ErrCodeNotFound},
		{"job not found", scheduler.ErrJobNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"invalid price", marketplace.ErrItemInvalidPrice, http.StatusBadRequest, dto.ErrCodeValidation},
		{"bad cookies", fmt.Errorf("%w: unexpected end", marketplace.ErrInvalidSessionCookies), http.StatusBadRequest, dto.ErrCodeValidation},
		{"unknown marketplace", marketplace.ErrUnknownMarketplace, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"invalid action", marketplaceapp.ErrInvalidAction, http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"live listings", marketplace.ErrItemHasLiveListings, http.StatusConflict, dto.ErrCodeConflict},
		{"account missing", marketplace.ErrAccountNotFound, http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"adapter unavailable", marketplace.ErrAdapterNotAvailable, http.StatusServiceUnavailable, dto.ErrCodeNotConfigured},
		{"oauth not configured", marketplaceapp.ErrOAuthNotConfigured, http.StatusServiceUnavailable, dto.ErrCodeNotConfigured},
		{"image too large", marketplaceapp.ErrImageTooLarge, http.StatusRequestEntityTooLarge, dto.ErrCodePayloadTooLarge},
		{"unsupported image", marketplaceapp.ErrUnsupportedImage, http.StatusUnsupportedMediaType, dto.ErrCodeUnsupportedMedia},
		{"queue full", scheduler.ErrJobQueueFull, http.StatusServiceUnavailable, dto.ErrCodeQueueFull},
		{"transient marketplace failure", marketplace.Transient("HTTP_503", "service unavailable"), http.StatusBadGateway, dto.ErrCodeUpstream},
		{"rejected marketplace failure", marketplace.NewSyncError(marketplace.FailureRejected, "INVALID_TOKEN", "bad code"), http.StatusUnprocessableEntity, dto.ErrCodeInvalidState},
		{"unknown error", errors.New("database exploded"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext()

			(&BaseHandler{}).HandleError(c, tt.err)

			assert.Equal(t, tt.expectedCode, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.expectedErr, resp.Error.Code)
		})
	}

	t.Run("internal errors do not leak details", func(t *testing.T) {
		c, w := newTestContext()
		(&BaseHandler{}).HandleError(c, errors.New("pq: password authentication failed"))
		assert.NotContains(t, w.Body.String(), "password")
	})

	t.Run("nil error writes nothing", func(t *testing.T) {
		c, w := newTestContext()
		(&BaseHandler{}).HandleError(c, nil)
		assert.Empty(t, w.Body.String())
	})
}
