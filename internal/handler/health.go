package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler reports liveness. Ping is nil when the service runs without
// a database.
type HealthHandler struct {
	Ping func() error
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

func (h *HealthHandler) dbState() string {
	if h.Ping == nil {
		return "disabled"
	}
	if err := h.Ping(); err != nil {
		return "down"
	}
	return "ok"
}

func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "db": h.dbState()})
}

func (h *HealthHandler) ready(c *gin.Context) {
	switch h.dbState() {
	case "disabled":
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_missing"})
	case "down":
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	}
}
