package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/waifeed/internal/service"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	feed FeedController
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(feed FeedController) *HealthHandler {
	return &HealthHandler{feed: feed}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	state := service.FeedUninitialized
	if h.feed != nil {
		state = h.feed.Status().State
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"feed":   state,
	})
}
