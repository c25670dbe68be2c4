package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ZkAGI/pawpad-rofl/internal/service"
)

type SwitchesHandler struct {
	Settings *service.SystemSettingsService
}

func (h *SwitchesHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/switches")
	g.GET("", h.list)
	g.PUT("/:key", h.put)
}

func (h *SwitchesHandler) list(c *gin.Context) {
	if h.Settings == nil {
		Unavailable(c, "settings service")
		return
	}
	switches, err := h.Settings.Switches(c.Request.Context())
	if err != nil {
		Upstream(c, err)
		return
	}
	Ok(c, switches, nil)
}

type putSwitchRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *SwitchesHandler) put(c *gin.Context) {
	if h.Settings == nil {
		Unavailable(c, "settings service")
		return
	}
	key := strings.TrimSpace(c.Param("key"))
	if _, known := service.DefaultFeatureSwitches()[key]; !known {
		Error(c, http.StatusNotFound, "unknown switch", map[string]any{"key": key})
		return
	}
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Settings.SetEnabled(c.Request.Context(), key, *req.Enabled); err != nil {
		Upstream(c, err)
		return
	}
	Ok(c, map[string]any{"key": key, "enabled": *req.Enabled}, nil)
}
