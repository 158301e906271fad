package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/waifeed/internal/api/handler"
	"github.com/timmy/waifeed/internal/api/middleware"
	"github.com/timmy/waifeed/internal/config"
	"github.com/timmy/waifeed/internal/logger"
	"github.com/timmy/waifeed/internal/surface"
)

// SetupRouter configures the Gin router with all routes.
// Parameters:
//   - feed: image feed controller.
//   - settings: settings store.
//   - hub: outbound message hub for display surfaces.
//   - cfg: server configuration.
//   - log: base logger for request logging.
//
// Returns:
//   - *gin.Engine: configured router.
//   - error: non-nil if the page templates fail to parse.
func SetupRouter(
	feed handler.FeedController,
	settings handler.SettingsService,
	hub *surface.Hub,
	cfg *config.ServerConfig,
	log *logger.Logger,
) (*gin.Engine, error) {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(feed)
	surfaceHandler := handler.NewSurfaceHandler(feed, settings, hub)
	settingsHandler := handler.NewSettingsHandler(settings, hub)
	feedHandler := handler.NewFeedHandler(feed, hub)
	pageHandler, err := handler.NewPageHandler(feed)
	if err != nil {
		return nil, err
	}

	r.GET("/health", healthHandler.Health)
	r.GET("/", pageHandler.Index)

	v1 := r.Group("/api/v1")
	{
		// Display surface protocol
		v1.POST("/surface/messages", surfaceHandler.Message)
		v1.GET("/surface/events", surfaceHandler.Events)
		v1.POST("/surface/open-settings", surfaceHandler.OpenSettings)
		v1.GET("/surfaces/:id/stats", surfaceHandler.Stats)

		// Settings
		v1.GET("/settings", settingsHandler.Get)
		v1.PUT("/settings", settingsHandler.Update)
		v1.DELETE("/settings", settingsHandler.Reset)
		v1.DELETE("/settings/:key", settingsHandler.Reset)

		// Feed
		v1.GET("/feed", feedHandler.Status)
	}

	return r, nil
}
