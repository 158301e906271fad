package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/timmy/waifeed/internal/surface"
)

// FeedHandler reports feed state.
type FeedHandler struct {
	feed FeedController
	hub  *surface.Hub
}

// NewFeedHandler creates a new feed handler.
func NewFeedHandler(feed FeedController, hub *surface.Hub) *FeedHandler {
	return &FeedHandler{feed: feed, hub: hub}
}

// Status handles GET /api/v1/feed.
func (h *FeedHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"feed":      h.feed.Status(),
		"surfaces":  h.hub.Count(),
		"published": h.hub.Published(),
	})
}
