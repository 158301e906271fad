package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/timmy/waifeed/internal/domain"
	"github.com/timmy/waifeed/internal/logger"
	"github.com/timmy/waifeed/internal/service"
	"github.com/timmy/waifeed/internal/surface"
)

// FeedController is the part of the feed driven by display surfaces.
type FeedController interface {
	Initialize(ctx context.Context) error
	Advance(ctx context.Context) (domain.Image, error)
	NewCategory(ctx context.Context) (domain.Image, error)
	Status() service.FeedStatus
}

// SettingsService reads and updates user settings.
type SettingsService interface {
	Snapshot() domain.Settings
	Update(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error)
	Reset(ctx context.Context, keys ...string) (domain.Settings, error)
}

// SurfaceHandler implements the display surface protocol: inbound commands
// over POST and outbound pushes over a server-sent event stream.
type SurfaceHandler struct {
	feed     FeedController
	settings SettingsService
	hub      *surface.Hub
}

// NewSurfaceHandler creates a new surface handler.
// Parameters:
//   - feed: image feed controller.
//   - settings: settings store.
//   - hub: outbound message hub.
//
// Returns:
//   - *SurfaceHandler: initialized handler.
func NewSurfaceHandler(feed FeedController, settings SettingsService, hub *surface.Hub) *SurfaceHandler {
	return &SurfaceHandler{
		feed:     feed,
		settings: settings,
		hub:      hub,
	}
}

// MessageResponse is returned for every accepted inbound command.
type MessageResponse struct {
	Command   string           `json:"command"`
	Delivered bool             `json:"delivered"`
	Image     *domain.Image    `json:"image,omitempty"`
	Settings  *domain.Settings `json:"settings,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// Message handles POST /api/v1/surface/messages.
func (h *SurfaceHandler) Message(c *gin.Context) {
	var msg domain.InboundMessage
	if err := c.ShouldBindJSON(&msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid message: " + err.Error(),
		})
		return
	}

	ctx := c.Request.Context()
	switch msg.Command {
	case domain.CommandReady, domain.CommandGetNextImage, domain.CommandRequestNewImage:
		img, err := h.feed.Advance(ctx)
		h.respondImage(c, msg.Command, img, err)

	case domain.CommandRequestNewCategory:
		img, err := h.feed.NewCategory(ctx)
		h.respondImage(c, msg.Command, img, err)

	case domain.CommandUpdateSettings:
		h.updateSettings(c, msg)

	case domain.CommandGetSettings:
		snap := h.settings.Snapshot()
		h.hub.Publish(domain.RestoreSettingsMessage(snap))
		c.JSON(http.StatusOK, MessageResponse{Command: msg.Command, Delivered: true, Settings: &snap})

	default:
		logger.CtxWarn(ctx, "Unknown surface command: %s", msg.Command)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": domain.ErrUnknownCommand.Error() + ": " + msg.Command,
		})
	}
}

func (h *SurfaceHandler) updateSettings(c *gin.Context, msg domain.InboundMessage) {
	patch := domain.SettingsPatch{
		Provider:     msg.Provider,
		AllowNSFW:    msg.AllowNSFW,
		AutoRefresh:  msg.AutoRefresh,
		RefreshDelay: msg.RefreshDelay,
	}
	snap, err := h.settings.Update(c.Request.Context(), patch)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidSetting) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{
			"error":      "Failed to save settings: " + err.Error(),
			"request_id": logger.GetRequestID(c.Request.Context()),
		})
		return
	}

	h.hub.Publish(domain.SettingsSavedMessage("Settings saved"))
	c.JSON(http.StatusOK, MessageResponse{Command: msg.Command, Delivered: true, Settings: &snap})
}

// respondImage reports the outcome of a feed operation. Feed failures are
// recovered: the surface keeps its previous image and may retry.
func (h *SurfaceHandler) respondImage(c *gin.Context, command string, img domain.Image, err error) {
	if err == nil {
		c.JSON(http.StatusOK, MessageResponse{Command: command, Delivered: true, Image: &img})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNoImage),
		errors.Is(err, domain.ErrNoCategory),
		errors.Is(err, domain.ErrStaleFetch):
		logger.CtxWarn(c.Request.Context(), "No image delivered: command=%s, error=%v", command, err)
		c.JSON(http.StatusOK, MessageResponse{Command: command, Delivered: false, Error: err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      err.Error(),
			"request_id": logger.GetRequestID(c.Request.Context()),
		})
	}
}

// Events handles GET /api/v1/surface/events. The first event is "hello"
// carrying the surface id, followed by a "message" event for every outbound
// message. The feed is initialized after hello is flushed; the surface's
// ready command requests the first image.
func (h *SurfaceHandler) Events(c *gin.Context) {
	id := c.Query("surface_id")
	if id == "" {
		id = logger.GetSurfaceID(c.Request.Context())
	}
	if id == "" {
		id = uuid.New().String()
	}

	ch, err := h.hub.Subscribe(id)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, surface.ErrSubscriberExists) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"error": err.Error(),
		})
		return
	}
	defer h.hub.Unsubscribe(id) //nolint:errcheck // already gone after hub.Close

	ctx := logger.SetSurfaceID(c.Request.Context(), id)
	logger.CtxInfo(ctx, "Surface connected: surfaces=%d", h.hub.Count())

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("hello", gin.H{
		"surfaceId": id,
	})
	c.Writer.Flush()

	if err := h.feed.Initialize(ctx); err != nil {
		logger.CtxWarn(ctx, "Feed initialization failed on surface open: %v", err)
	}

	c.Stream(func(w io.Writer) bool {
		select {
		case msg, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("message", msg)
			return true
		case <-ctx.Done():
			return false
		}
	})

	logger.CtxInfo(ctx, "Surface disconnected")
}

// OpenSettings handles POST /api/v1/surface/open-settings, the host-side
// trigger that asks every surface to show its settings panel.
func (h *SurfaceHandler) OpenSettings(c *gin.Context) {
	h.hub.Publish(domain.OpenSettingsMessage())
	c.JSON(http.StatusAccepted, gin.H{
		"surfaces": h.hub.Count(),
	})
}

// Stats handles GET /api/v1/surfaces/:id/stats.
func (h *SurfaceHandler) Stats(c *gin.Context) {
	stats, err := h.hub.Stats(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}
