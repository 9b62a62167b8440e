package handler

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/crosslist/backend/internal/domain/marketplace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemHandler_Health(t *testing.T) {
	ok := HealthCheck{Name: "database", Check: func(context.Context) error { return nil }}

	t.Run("all checks pass", func(t *testing.T) {
		h := NewSystemHandler("crosslist", "test", nil, ok)
		c, w := newTestContext()

		h.Health(c)

		assert.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, "ok", data["status"])
		assert.Equal(t, "ok", data["checks"].(map[string]any)["database"])
	})

	t.Run("failing check degrades", func(t *testing.T) {
		redis := HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }}
		h := NewSystemHandler("crosslist", "test", nil, ok, redis)
		c, w := newTestContext()

		h.Health(c)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		data := decodeResponse(t, w).Data.(map[string]any)
		assert.Equal(t, "degraded", data["status"])
		checks := data["checks"].(map[string]any)
		assert.Equal(t, "ok", checks["database"])
		assert.Equal(t, "connection refused", checks["redis"])
	})

	t.Run("checks receive a deadline", func(t *testing.T) {
		var hasDeadline bool
		probe := HealthCheck{Name: "probe", Check: func(ctx context.Context) error {
			_, hasDeadline = ctx.Deadline()
			return nil
		}}
		c, _ := newTestContext()
		NewSystemHandler("crosslist", "test", nil, probe).Health(c)
		assert.True(t, hasDeadline)
	})
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	registry := marketplace.NewRegistry(&stubAdapter{code: marketplace.CodePoshmark}, &stubAdapter{code: marketplace.CodeEbay})
	h := NewSystemHandler("crosslist", "1.2.0", registry)
	c, w := newTestContext()

	h.GetSystemInfo(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "crosslist", data["name"])
	assert.Equal(t, "1.2.0", data["version"])
	assert.NotEmpty(t, data["go_version"])
	assert.Equal(t, []any{"EBAY", "POSHMARK"}, data["marketplaces"])
}

func TestSystemHandler_Ping(t *testing.T) {
	c, w := newTestContext()

	NewSystemHandler("crosslist", "test", nil).Ping(c)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]any)
	assert.Equal(t, "pong", data["message"])
	assert.NotEmpty(t, data["timestamp"])
}
