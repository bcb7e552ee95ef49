package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/farmerp/backend/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func serveSystem(t *testing.T, h *SystemHandler, path string) (*httptest.ResponseRecorder, dto.Response) {
	t.Helper()
	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestSystemHandler_GetSystemInfo(t *testing.T) {
	h := NewSystemHandler("farmerp-integrity", "1.2.0", nil)
	w, resp := serveSystem(t, h, "/api/v1/system/info")

	assert.Equal(t, http.StatusOK, w.Code)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "farmerp-integrity", data["name"])
	assert.Equal(t, "1.2.0", data["version"])
	assert.NotEmpty(t, data["go_version"])
}

func TestSystemHandler_Health(t *testing.T) {
	healthy := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("connection refused") })

	t.Run("all dependencies up", func(t *testing.T) {
		h := NewSystemHandler("svc", "dev", map[string]HealthChecker{"database": healthy})
		w, resp := serveSystem(t, h, "/api/v1/health")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, resp.Success)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "ok", data["status"])
	})

	t.Run("a dependency is down", func(t *testing.T) {
		h := NewSystemHandler("svc", "dev", map[string]HealthChecker{"database": healthy, "redis": down})
		w, resp := serveSystem(t, h, "/api/v1/health")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.False(t, resp.Success)
		checks := resp.Data.(map[string]any)["checks"].(map[string]any)
		assert.Equal(t, "ok", checks["database"])
		assert.Equal(t, "connection refused", checks["redis"])
	})
}
