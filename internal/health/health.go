package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

type Manager struct {
	ready  atomic.Bool
	pinger Pinger
}

func NewManager(initialReady bool, pinger Pinger) *Manager {
	m := &Manager{pinger: pinger}
	m.ready.Store(initialReady)
	return m
}

func (m *Manager) SetReady(ready bool) {
	m.ready.Store(ready)
}

// IsReady is false while shutting down or when the identity store is unreachable.
func (m *Manager) IsReady(ctx context.Context) bool {
	if !m.ready.Load() {
		return false
	}
	if m.pinger == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return m.pinger.Ping(ctx) == nil
}

func LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ReadinessHandler(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.IsReady(c.Request.Context()) {
			c.JSON(http.StatusOK, gin.H{"status": "ready"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
	}
}
