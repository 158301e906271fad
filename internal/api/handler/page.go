package handler

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
)

//go:embed templates/*.html
var templatesFS embed.FS

// PageHandler serves the bundled browser display surface.
type PageHandler struct {
	feed      FeedController
	templates *template.Template
}

// NewPageHandler parses the embedded templates.
func NewPageHandler(feed FeedController) (*PageHandler, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &PageHandler{feed: feed, templates: tmpl}, nil
}

// Index handles GET /. The page starts with the image currently on display,
// if any, and takes over through the event stream once it sends ready.
func (h *PageHandler) Index(c *gin.Context) {
	data := gin.H{
		"ImageURL":     "",
		"Category":     "",
		"EventsPath":   "/api/v1/surface/events",
		"MessagesPath": "/api/v1/surface/messages",
	}
	if cur := h.feed.Status().Current; cur != nil {
		data["ImageURL"] = cur.URL
		data["Category"] = cur.Category
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(c.Writer, "client.html", data); err != nil {
		_ = c.Error(err)
		c.Status(http.StatusInternalServerError)
	}
}
