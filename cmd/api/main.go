package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/waifeed/internal/api"
	"github.com/timmy/waifeed/internal/config"
	"github.com/timmy/waifeed/internal/logger"
	"github.com/timmy/waifeed/internal/provider"
	"github.com/timmy/waifeed/internal/provider/waifuim"
	"github.com/timmy/waifeed/internal/provider/waifupics"
	"github.com/timmy/waifeed/internal/repository"
	"github.com/timmy/waifeed/internal/service"
	"github.com/timmy/waifeed/internal/surface"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	loader := config.NewLoader(os.Getenv("CONFIG_PATH"))
	cfg, err := loader.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.NewDefault()
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}

	defaults, err := cfg.Defaults.Settings()
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid default settings")
	}
	store, err := service.NewSettingsStore(ctx, repository.NewSettingsRepository(db), defaults)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load settings")
	}

	registry, err := newRegistry(cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize providers")
	}
	fetcher := provider.NewFetcher(&provider.FetcherConfig{
		Timeout:   cfg.Feed.FetchTimeout,
		Retries:   cfg.Feed.FetchRetries,
		UserAgent: cfg.Providers.UserAgent,
	})

	hub := surface.NewHub(cfg.Feed.SurfaceBuffer)
	feed := service.NewFeedService(store, registry, fetcher, nil, hub)
	unwatch := feed.Watch(logger.SetComponent(ctx, "feed"))
	defer unwatch()

	// Category lists follow the config file; user preferences stay in the store.
	watchCtx := logger.SetComponent(ctx, "config")
	if loader.Watch(func(next *config.Config) {
		if _, err := store.Update(watchCtx, next.Defaults.CategoryPatch()); err != nil {
			logger.CtxError(watchCtx, "Failed to apply category lists from config: %v", err)
			return
		}
		logger.CtxInfo(watchCtx, "Category lists reloaded from %s", loader.ConfigFile())
	}, func(err error) {
		logger.CtxError(watchCtx, "Failed to reload config: %v", err)
	}) {
		appLogger.WithField("file", loader.ConfigFile()).Info("Watching config file")
	}

	router, err := api.SetupRouter(feed, store, hub, &cfg.Server, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to set up router")
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		// Ends every open event stream so Shutdown does not wait on them.
		hub.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.WithError(err).Error("Server exited with error")
		return
	}
	appLogger.Info("Server exited")
}

func newRegistry(cfg *config.Config) (*provider.Registry, error) {
	pics, err := waifupics.NewAdapter(cfg.Providers.WaifuPics.BaseURL)
	if err != nil {
		return nil, err
	}
	im, err := waifuim.NewAdapter(cfg.Providers.WaifuIm.BaseURL, cfg.Feed.BatchSize)
	if err != nil {
		return nil, err
	}
	return provider.NewRegistry(pics, im), nil
}
