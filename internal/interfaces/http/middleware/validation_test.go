package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslist/backend/internal/interfaces/http/dto"
)

func TestSetupValidator(t *testing.T) {
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	assert.True(t, ok)
	assert.NotNil(t, v)
}

func TestCustomTags(t *testing.T) {
	v := validator.New()
	RegisterValidations(v)

	type target struct {
		Marketplace string           `json:"marketplace" validate:"marketplace"`
		Action      string           `json:"action" validate:"sync_action"`
		Price       decimal.Decimal  `json:"price" validate:"gt=0"`
		NewPrice    *decimal.Decimal `json:"new_price" validate:"omitempty,gt=0"`
	}

	valid := target{Marketplace: "ebay", Action: "publish", Price: decimal.NewFromInt(10)}
	assert.NoError(t, v.Struct(valid))

	negative := decimal.NewFromInt(-5)
	invalid := target{Marketplace: "etsy", Action: "SHIP", Price: decimal.Zero, NewPrice: &negative}
	err := v.Struct(invalid)
	require.Error(t, err)

	var fields []string
	for _, fe := range err.(validator.ValidationErrors) {
		fields = append(fields, fe.Field()+":"+fe.Tag())
	}
	assert.ElementsMatch(t, []string{
		"marketplace:marketplace",
		"action:sync_action",
		"price:gt",
		"new_price:gt",
	}, fields)
}

func TestHandleValidationError(t *testing.T) {
	type request struct {
		Title       string `json:"title" binding:"required,max=10"`
		Marketplace string `json:"marketplace" binding:"required,marketplace"`
	}

	SetupValidator()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.POST("/test", func(c *gin.Context) {
		var req request
		if err := c.ShouldBindJSON(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(req))
	})

	t.Run("returns field details for invalid input", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"title": "far too long a title", "marketplace": "etsy"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(RequestIDHeader, "req-42")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.Equal(t, "req-42", resp.Error.RequestID)
		require.Len(t, resp.Error.Details, 2)
		assert.Equal(t, "title", resp.Error.Details[0].Field)
		assert.Equal(t, "Must be at most 10 characters", resp.Error.Details[0].Message)
		assert.Equal(t, "marketplace", resp.Error.Details[1].Field)
		assert.Equal(t, "Unknown marketplace", resp.Error.Details[1].Message)
	})

	t.Run("passes valid input", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"title": "Jacket", "marketplace": "POSHMARK"}`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("malformed json has no details", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{`))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.Error.Details)
	})
}
