package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/waifeed/internal/config"
	"github.com/timmy/waifeed/internal/domain"
	"github.com/timmy/waifeed/internal/logger"
	"github.com/timmy/waifeed/internal/provider"
	"github.com/timmy/waifeed/internal/provider/waifuim"
	"github.com/timmy/waifeed/internal/provider/waifupics"
	"github.com/timmy/waifeed/internal/repository"
	"github.com/timmy/waifeed/internal/service"
)

// fixedSettings serves one snapshot and never changes.
type fixedSettings struct {
	snap domain.Settings
}

func (f fixedSettings) Snapshot() domain.Settings { return f.snap.Clone() }
func (f fixedSettings) OnChange(func(domain.Settings)) func() { return func() {} }

// printer writes every pushed message as one JSON line.
type printer struct {
	enc *json.Encoder
}

func (p printer) Publish(msg domain.OutboundMessage) {
	_ = p.enc.Encode(msg)
}

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "warn",
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "waifeed-feedctl",
	})
	logger.SetDefaultLogger(appLogger)

	count := flag.Int("count", 5, "Number of images to cycle")
	rerollEvery := flag.Int("reroll-every", 0, "Draw a new category every N images (0 disables)")
	interval := flag.Duration("interval", 0, "Pause between images")
	providerName := flag.String("provider", "", "Override the provider (waifu.pics, waifu.im)")
	nsfw := flag.Bool("nsfw", false, "Use the NSFW category lists")
	single := flag.Bool("single", false, "Request one image per fetch instead of a batch")
	useStore := flag.Bool("store", true, "Start from the saved settings instead of the config defaults")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	snap, err := cfg.Defaults.Settings()
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid default settings")
	}
	if *useStore {
		db, err := repository.InitDB(&cfg.Database)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize database")
		}
		store, err := service.NewSettingsStore(ctx, repository.NewSettingsRepository(db), snap)
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to load settings")
		}
		snap = store.Snapshot()
	}

	// Flag overrides stay local to this run.
	if *providerName != "" {
		p, err := domain.ParseProvider(*providerName)
		if err != nil {
			appLogger.WithError(err).Fatal("Invalid provider")
		}
		snap.Provider = p
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "nsfw":
			snap.AllowNSFW = *nsfw
		case "single":
			snap.AutoRefresh = !*single
		}
	})

	pics, err := waifupics.NewAdapter(cfg.Providers.WaifuPics.BaseURL)
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid waifu.pics base url")
	}
	im, err := waifuim.NewAdapter(cfg.Providers.WaifuIm.BaseURL, cfg.Feed.BatchSize)
	if err != nil {
		appLogger.WithError(err).Fatal("Invalid waifu.im base url")
	}
	fetcher := provider.NewFetcher(&provider.FetcherConfig{
		Timeout:   cfg.Feed.FetchTimeout,
		Retries:   cfg.Feed.FetchRetries,
		UserAgent: cfg.Providers.UserAgent,
	})

	feed := service.NewFeedService(
		fixedSettings{snap: snap},
		provider.NewRegistry(pics, im),
		fetcher,
		nil,
		printer{enc: json.NewEncoder(os.Stdout)},
	)

	delivered, err := run(ctx, feed, *count, *rerollEvery, *interval)
	fmt.Fprintf(os.Stderr, "delivered %d/%d images (provider=%s, rating=%s)\n",
		delivered, *count, snap.Provider, domain.Rating(snap.AllowNSFW))
	if err != nil {
		appLogger.WithError(err).Error("Feed cycle stopped")
		os.Exit(1)
	}
	if delivered == 0 {
		os.Exit(1)
	}
}

func run(ctx context.Context, feed *service.FeedService, count, rerollEvery int, interval time.Duration) (int, error) {
	if err := feed.Initialize(ctx); err != nil {
		return 0, err
	}

	delivered := 0
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return delivered, ctx.Err()
			case <-time.After(interval):
			}
		}

		var err error
		if rerollEvery > 0 && i > 0 && i%rerollEvery == 0 {
			_, err = feed.NewCategory(ctx)
		} else {
			_, err = feed.Advance(ctx)
		}
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, domain.ErrNoCategory):
			return delivered, err
		default:
			logger.CtxWarn(ctx, "No image on step %d: %v", i+1, err)
		}
	}
	return delivered, nil
}
