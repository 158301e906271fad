package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/waifeed/internal/domain"
	"github.com/timmy/waifeed/internal/logger"
	"github.com/timmy/waifeed/internal/surface"
)

// SettingsHandler exposes the settings store over HTTP.
type SettingsHandler struct {
	settings SettingsService
	hub      *surface.Hub
}

// NewSettingsHandler creates a new settings handler.
func NewSettingsHandler(settings SettingsService, hub *surface.Hub) *SettingsHandler {
	return &SettingsHandler{settings: settings, hub: hub}
}

// Get handles GET /api/v1/settings.
func (h *SettingsHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, h.settings.Snapshot())
}

// Update handles PUT /api/v1/settings. Connected surfaces receive the new
// values through restoreSettings.
func (h *SettingsHandler) Update(c *gin.Context) {
	var patch domain.SettingsPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	snap, err := h.settings.Update(c.Request.Context(), patch)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSetting) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Failed to save settings",
			"request_id": logger.GetRequestID(c.Request.Context()),
		})
		return
	}

	h.hub.Publish(domain.RestoreSettingsMessage(snap))
	c.JSON(http.StatusOK, snap)
}

// Reset handles DELETE /api/v1/settings and DELETE /api/v1/settings/:key,
// restoring the defaults for one key or for every stored value.
func (h *SettingsHandler) Reset(c *gin.Context) {
	var keys []string
	if key := c.Param("key"); key != "" {
		keys = append(keys, key)
	}

	snap, err := h.settings.Reset(c.Request.Context(), keys...)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "Failed to reset settings",
			"request_id": logger.GetRequestID(c.Request.Context()),
		})
		return
	}

	h.hub.Publish(domain.RestoreSettingsMessage(snap))
	c.JSON(http.StatusOK, snap)
}
