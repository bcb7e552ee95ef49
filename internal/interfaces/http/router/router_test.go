package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/farmerp/backend/internal/interfaces/http/dto"
	"github.com/farmerp/backend/internal/interfaces/http/handler"
	"github.com/farmerp/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type registrarFunc func(rg *gin.RouterGroup)

func (f registrarFunc) RegisterRoutes(rg *gin.RouterGroup) { f(rg) }

func pingRegistrar(path string) RouteRegistrar {
	return registrarFunc(func(rg *gin.RouterGroup) {
		rg.GET(path, func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	})
}

func newTestEngine(t *testing.T, cfg EngineConfig) *gin.Engine {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	engine, err := NewEngine(cfg)
	require.NoError(t, err)
	return engine
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "v1", r.apiVersion)
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "v2", r.apiVersion)
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	NewRouter(engine, WithAPIVersion("v2")).
		Register(pingRegistrar("/a"), pingRegistrar("/b")).
		Setup()

	for _, path := range []string{"/api/v2/a", "/api/v2/b"} {
		w := serve(engine, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "pong", w.Body.String())
	}
	w := serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/a", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNewEngine_NoRoute(t *testing.T) {
	engine := newTestEngine(t, EngineConfig{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/nothing", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-404")
	w := serve(engine, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "req-404", w.Header().Get(middleware.RequestIDHeader))

	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, dto.ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "req-404", resp.Error.RequestID)
}

func TestNewEngine_MethodNotAllowed(t *testing.T) {
	engine := newTestEngine(t, EngineConfig{})
	NewRouter(engine).Register(pingRegistrar("/ping")).Setup()

	w := serve(engine, httptest.NewRequest(http.MethodDelete, "/api/v1/ping", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestNewEngine_RecoversPanics(t *testing.T) {
	engine := newTestEngine(t, EngineConfig{})
	NewRouter(engine).Register(registrarFunc(func(rg *gin.RouterGroup) {
		rg.GET("/boom", func(*gin.Context) { panic("boom") })
	})).Setup()

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), dto.ErrCodeInternal)
}

func TestNewEngine_SecurityAndCORS(t *testing.T) {
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = []string{"https://ops.farm.example"}
	engine := newTestEngine(t, EngineConfig{CORS: cors})
	NewRouter(engine).Register(pingRegistrar("/ping")).Setup()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil)
	req.Header.Set("Origin", "https://ops.farm.example")
	w := serve(engine, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "https://ops.farm.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestNewEngine_BodyLimit(t *testing.T) {
	engine := newTestEngine(t, EngineConfig{MaxBodySize: 16})
	NewRouter(engine).Register(registrarFunc(func(rg *gin.RouterGroup) {
		rg.POST("/echo", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	})).Setup()

	w := serve(engine, httptest.NewRequest(http.MethodPost, "/api/v1/echo", strings.NewReader(strings.Repeat("x", 64))))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = serve(engine, httptest.NewRequest(http.MethodPost, "/api/v1/echo", strings.NewReader("{}")))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestNewEngine_RejectsInvalidTrustedProxy(t *testing.T) {
	_, err := NewEngine(EngineConfig{TrustedProxies: []string{"not-an-ip"}})
	assert.Error(t, err)
}

func TestNewEngine_ServesSystemHandler(t *testing.T) {
	engine := newTestEngine(t, EngineConfig{})
	NewRouter(engine).Register(handler.NewSystemHandler("svc", "test", nil)).Setup()

	w := serve(engine, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
