package health

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func serveReadiness(m *Manager) int {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/readyz", ReadinessHandler(m))
	router.GET("/healthz", LivenessHandler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return rec.Code
}

func TestReadiness(t *testing.T) {
	healthy := pingerFunc(func(context.Context) error { return nil })
	broken := pingerFunc(func(context.Context) error { return errors.New("down") })

	assert.Equal(t, http.StatusOK, serveReadiness(NewManager(true, nil)))
	assert.Equal(t, http.StatusOK, serveReadiness(NewManager(true, healthy)))
	assert.Equal(t, http.StatusServiceUnavailable, serveReadiness(NewManager(true, broken)))

	m := NewManager(true, healthy)
	m.SetReady(false)
	assert.Equal(t, http.StatusServiceUnavailable, serveReadiness(m))
}

func TestLiveness(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/healthz", LivenessHandler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
