package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"callpilot/internal/core/domain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:5000"
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit_DisabledAllowsEverything(t *testing.T) {
	router := newRouter(RateLimit(0, 0))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, get(router, "/test").Code)
	}
}

func TestRateLimit_RejectsBurstOverflow(t *testing.T) {
	router := newRouter(RateLimit(1, 2))
	router.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(router, "/test").Code)
	assert.Equal(t, http.StatusOK, get(router, "/test").Code)

	w := get(router, "/test")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestLimiterStore_EvictsIdleClients(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := newLimiterStore(1, 1)
	store.now = func() time.Time { return now }

	store.get("a")
	store.get("b")
	require.Equal(t, 2, store.size())

	now = now.Add(idleLimiterTTL + time.Second)
	store.get("c")
	assert.Equal(t, 1, store.size())
}

func TestErrorHandler_MapsDomainErrors(t *testing.T) {
	router := newRouter(ErrorHandler(zap.NewNop().Sugar()))
	router.GET("/missing", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("pin: %w", domain.ErrParticipantNotFound))
	})
	router.GET("/nocall", func(c *gin.Context) {
		_ = c.Error(domain.ErrMissingCallContext)
	})
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})

	w := get(router, "/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
	assert.Contains(t, w.Body.String(), "participant not found")

	assert.Equal(t, http.StatusConflict, get(router, "/nocall").Code)

	w = get(router, "/boom")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestRecovery(t *testing.T) {
	router := newRouter(Recovery(zap.NewNop().Sugar()))
	router.GET("/panic", func(c *gin.Context) { panic("bad") })

	w := get(router, "/panic")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestTracing_PassesThrough(t *testing.T) {
	router := newRouter(Tracing())
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, get(router, "/ok").Code)
}
