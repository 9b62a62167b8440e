package handler

import (
	"errors"
	"net/http"

	marketplaceapp "github.com/crosslist/backend/internal/application/marketplace"
	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/crosslist/backend/internal/infrastructure/logger"
	"github.com/crosslist/backend/internal/infrastructure/scheduler"
	"github.com/crosslist/backend/internal/interfaces/http/dto"
	"github.com/crosslist/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDKey); id != "" {
		return id
	}
	if c.Request != nil {
		return c.GetHeader(middleware.RequestIDHeader)
	}
	return ""
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Accepted sends a 202 accepted response
func (h *BaseHandler) Accepted(c *gin.Context, data any) {
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.Set(middleware.ErrorCodeKey, dto.NormalizeErrorCode(code))
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	code = dto.NormalizeErrorCode(code)
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	c.Set(middleware.ErrorCodeKey, dto.ErrCodeValidation)
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		getRequestID(c),
		details,
	))
}

// errorMapping pairs a sentinel error with the envelope code it is reported as
type errorMapping struct {
	target error
	code   string
}

// errorMappings is checked in order with errors.Is
var errorMappings = []errorMapping{
	{marketplace.ErrItemNotFound, dto.ErrCodeNotFound},
	{marketplace.ErrImageNotFound, dto.ErrCodeNotFound},
	{marketplace.ErrListingNotFound, dto.ErrCodeNotFound},
	{scheduler.ErrJobNotFound, dto.ErrCodeNotFound},

	{marketplace.ErrItemTitleRequired, dto.ErrCodeValidation},
	{marketplace.ErrItemTitleTooLong, dto.ErrCodeValidation},
	{marketplace.ErrItemInvalidPrice, dto.ErrCodeValidation},
	{marketplace.ErrItemInvalidQuantity, dto.ErrCodeValidation},
	{marketplace.ErrItemInvalidCurrency, dto.ErrCodeValidation},
	{marketplace.ErrInvalidSessionCookies, dto.ErrCodeValidation},
	{marketplace.ErrAccountInvalidToken, dto.ErrCodeValidation},

	{marketplace.ErrUnknownMarketplace, dto.ErrCodeInvalidInput},
	{marketplaceapp.ErrInvalidAction, dto.ErrCodeInvalidInput},
	{marketplaceapp.ErrNoMarketplaces, dto.ErrCodeInvalidInput},
	{marketplaceapp.ErrInvalidStatusFilter, dto.ErrCodeInvalidInput},

	{marketplace.ErrItemHasLiveListings, dto.ErrCodeConflict},
	{marketplace.ErrAccountNotFound, dto.ErrCodeInvalidState},

	{marketplace.ErrAdapterNotAvailable, dto.ErrCodeNotConfigured},
	{marketplaceapp.ErrOAuthNotConfigured, dto.ErrCodeNotConfigured},
	{marketplaceapp.ErrStorageNotConfigured, dto.ErrCodeNotConfigured},

	{marketplaceapp.ErrImageTooLarge, dto.ErrCodePayloadTooLarge},
	{marketplaceapp.ErrUnsupportedImage, dto.ErrCodeUnsupportedMedia},

	{scheduler.ErrJobQueueFull, dto.ErrCodeQueueFull},
	{scheduler.ErrPoolStopped, dto.ErrCodeQueueFull},
	{marketplaceapp.ErrQueueFull, dto.ErrCodeQueueFull},
}

// errorCode resolves the envelope code of a known error
func errorCode(err error) (string, bool) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.code, true
		}
	}
	var syncErr *marketplace.SyncError
	if errors.As(err, &syncErr) {
		if syncErr.Retryable() {
			return dto.ErrCodeUpstream, true
		}
		return dto.ErrCodeInvalidState, true
	}
	return "", false
}

// HandleError converts service errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	if code, ok := errorCode(err); ok {
		h.Error(c, dto.GetHTTPStatus(code), code, err.Error())
		return
	}

	logger.L(c.Request.Context()).Error("Unhandled request error",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	h.InternalError(c, "An unexpected error occurred")
}
