package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/timmy/waifeed/internal/domain"
	"github.com/timmy/waifeed/internal/logger"
	"github.com/timmy/waifeed/internal/provider"
)

// Publisher receives messages for the display surface.
type Publisher interface {
	Publish(msg domain.OutboundMessage)
}

// SettingsSource provides settings snapshots and change notifications.
type SettingsSource interface {
	Snapshot() domain.Settings
	OnChange(fn func(domain.Settings)) func()
}

// AdapterResolver resolves the adapter for a provider.
type AdapterResolver interface {
	Get(p domain.Provider) (provider.Adapter, error)
}

// BatchFetcher executes a provider request.
type BatchFetcher interface {
	Fetch(ctx context.Context, a provider.Adapter, req *provider.Request) ([]string, error)
}

// FeedState is the lifecycle state of a FeedService.
type FeedState string

const (
	FeedUninitialized FeedState = "uninitialized"
	FeedReady         FeedState = "ready"
)

// FeedStatus is a point-in-time view of the feed.
type FeedStatus struct {
	State           FeedState       `json:"state"`
	Provider        domain.Provider `json:"provider"`
	Category        string          `json:"category"`
	BatchSize       int             `json:"batchSize"`
	Cursor          int             `json:"cursor"`
	Current         *domain.Image   `json:"current,omitempty"`
	RefreshDelay    int             `json:"refreshDelay"`
	SettingsVersion uint64          `json:"settingsVersion"`
}

// FeedService owns provider/category selection, the current batch and its cursor.
//
// Every public operation holds mu for its whole duration, fetch included, so
// operations never interleave over the batch. Settings changes announce their
// version before queueing on mu; a fetch issued under an older snapshot is
// discarded when it resolves. Status reads a copy published at the end of
// each operation and never waits on mu.
type FeedService struct {
	settings  SettingsSource
	adapters  AdapterResolver
	fetcher   BatchFetcher
	selector  *CategorySelector
	publisher Publisher

	mu       sync.Mutex
	state    FeedState
	snap     domain.Settings
	category string
	adapter  provider.Adapter
	request  *provider.Request
	batch    []string
	cursor   int
	current  *domain.Image

	latestVersion atomic.Uint64
	status        atomic.Pointer[FeedStatus] // read without mu
}

// NewFeedService creates a new feed controller.
// Parameters:
//   - settings: source of settings snapshots.
//   - adapters: provider adapter lookup.
//   - fetcher: executes provider requests.
//   - selector: category selector; nil creates one with a clock seed.
//   - publisher: display surface sink.
//
// Returns:
//   - *FeedService: controller in the uninitialized state.
func NewFeedService(
	settings SettingsSource,
	adapters AdapterResolver,
	fetcher BatchFetcher,
	selector *CategorySelector,
	publisher Publisher,
) *FeedService {
	if selector == nil {
		selector = NewCategorySelector(nil)
	}
	s := &FeedService{
		settings:  settings,
		adapters:  adapters,
		fetcher:   fetcher,
		selector:  selector,
		publisher: publisher,
		state:     FeedUninitialized,
	}
	s.publishStatus()
	return s
}

// Watch subscribes the feed to settings changes until the returned function is called.
func (s *FeedService) Watch(ctx context.Context) func() {
	return s.settings.OnChange(func(next domain.Settings) {
		if err := s.ApplySettings(ctx, next); err != nil {
			logger.CtxWarn(ctx, "Failed to apply settings: version=%d, error=%v", next.Version, err)
		}
	})
}

// Initialize loads the settings snapshot, picks a category and fetches the first batch.
// It is a no-op once the feed is ready. A failed fetch leaves the feed ready with an
// empty batch; only configuration problems are returned.
func (s *FeedService) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publishStatus()
	return s.initialize(ctx)
}

func (s *FeedService) initialize(ctx context.Context) error {
	if s.state == FeedReady {
		return nil
	}

	snap := s.settings.Snapshot()
	s.announce(snap.Version)
	s.snap = snap

	if err := s.rollCategory(); err != nil {
		logger.CtxWarn(ctx, "Feed not initialized: %v", err)
		return err
	}
	s.state = FeedReady

	if err := s.refill(ctx); err != nil {
		logger.CtxWarn(ctx, "Initial fetch failed, next advance will retry: %v", err)
	}
	logger.CtxInfo(ctx, "Feed initialized: provider=%s, category=%s, batch=%d",
		s.snap.Provider, s.category, len(s.batch))
	return nil
}

// Advance serves the next image and pushes it to the display surface.
// When the batch is exhausted it is refetched immediately, so the next call
// starts a fresh batch. Returns an error wrapping domain.ErrNoImage when nothing
// can be served.
func (s *FeedService) Advance(ctx context.Context) (domain.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publishStatus()
	return s.advance(ctx)
}

func (s *FeedService) advance(ctx context.Context) (domain.Image, error) {
	if s.state == FeedUninitialized {
		if err := s.initialize(ctx); err != nil {
			return domain.Image{}, fmt.Errorf("%w: %w", domain.ErrNoImage, err)
		}
	}

	if len(s.batch) == 0 {
		if err := s.refill(ctx); err != nil {
			return domain.Image{}, fmt.Errorf("%w: %w", domain.ErrNoImage, err)
		}
		if len(s.batch) == 0 {
			return domain.Image{}, domain.ErrNoImage
		}
	}

	img := domain.Image{
		URL:      s.batch[s.cursor],
		Category: s.category,
		Provider: s.snap.Provider,
	}
	s.cursor = (s.cursor + 1) % len(s.batch)
	if s.cursor == 0 {
		if err := s.refill(ctx); err != nil {
			logger.CtxWarn(ctx, "Refill after exhausted batch failed, next advance will retry: %v", err)
		}
	}

	s.current = &img
	s.publisher.Publish(domain.UpdateImageMessage(img, s.snap.RefreshDelaySeconds()))
	return img, nil
}

// NewCategory re-rolls the category, fetches a fresh batch and serves its first image.
// A configuration error leaves the previous image on display.
func (s *FeedService) NewCategory(ctx context.Context) (domain.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publishStatus()

	if s.state == FeedUninitialized {
		if err := s.initialize(ctx); err != nil {
			return domain.Image{}, err
		}
	}
	if err := s.rollCategory(); err != nil {
		logger.CtxWarn(ctx, "Category re-roll failed: %v", err)
		return domain.Image{}, err
	}
	if err := s.refill(ctx); err != nil {
		return domain.Image{}, fmt.Errorf("%w: %w", domain.ErrNoImage, err)
	}
	return s.advance(ctx)
}

// ApplySettings replaces the snapshot. A change of provider, rating or batch mode,
// or a category list that no longer holds the active category, re-rolls the
// category and refetches before serving an image. Otherwise the current image is
// pushed again with the recomputed refresh delay.
func (s *FeedService) ApplySettings(ctx context.Context, next domain.Settings) error {
	s.announce(next.Version)

	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.publishStatus()

	if next.Version < s.latestVersion.Load() {
		logger.CtxDebug(ctx, "Settings superseded: version=%d", next.Version)
		return nil
	}
	if s.state == FeedUninitialized {
		// Initialize reads the store directly.
		return nil
	}

	prev := s.snap
	s.snap = next.Clone()

	if !next.FetchModeChanged(prev) && slices.Contains(next.ActiveCategories(), s.category) {
		if s.current != nil {
			s.publisher.Publish(domain.UpdateImageMessage(*s.current, s.snap.RefreshDelaySeconds()))
		}
		return nil
	}

	if err := s.rollCategory(); err != nil {
		return err
	}
	if err := s.refill(ctx); err != nil {
		return err
	}
	_, err := s.advance(ctx)
	return err
}

// RefreshDelaySeconds returns the configured delay, or -1 when auto-refresh is off.
func (s *FeedService) RefreshDelaySeconds() int {
	return s.Status().RefreshDelay
}

// Status returns the feed state as of the last completed operation.
// It does not wait for an operation in progress.
func (s *FeedService) Status() FeedStatus {
	st := *s.status.Load()
	if st.Current != nil {
		img := *st.Current
		st.Current = &img
	}
	return st
}

// publishStatus stores a copy of the state for Status. Callers hold mu.
func (s *FeedService) publishStatus() {
	st := &FeedStatus{
		State:           s.state,
		Provider:        s.snap.Provider,
		Category:        s.category,
		BatchSize:       len(s.batch),
		Cursor:          s.cursor,
		RefreshDelay:    s.snap.RefreshDelaySeconds(),
		SettingsVersion: s.snap.Version,
	}
	if s.current != nil {
		img := *s.current
		st.Current = &img
	}
	s.status.Store(st)
}

// rollCategory draws a category for the snapshot and rebuilds the request.
// On failure the previous category and batch are cleared so they are never
// reused against a different provider or rating.
func (s *FeedService) rollCategory() error {
	s.batch = nil
	s.cursor = 0

	category, err := s.selector.Select(s.snap)
	if err != nil {
		s.category, s.adapter, s.request = "", nil, nil
		return err
	}
	adapter, err := s.adapters.Get(s.snap.Provider)
	if err != nil {
		s.category, s.adapter, s.request = "", nil, nil
		return err
	}
	req, err := adapter.BuildRequest(category, s.snap.AllowNSFW, s.snap.AutoRefresh)
	if err != nil {
		s.category, s.adapter, s.request = "", nil, nil
		return err
	}

	s.category, s.adapter, s.request = category, adapter, req
	return nil
}

// refill replaces the batch with a fresh fetch and resets the cursor.
// On any failure the batch is left empty.
func (s *FeedService) refill(ctx context.Context) error {
	s.batch = nil
	s.cursor = 0

	if s.request == nil {
		return domain.ErrNoCategory
	}

	issuedUnder := s.snap.Version
	fetchCtx := logger.WithFields(ctx, logger.Fields{
		logger.FieldFetchID:  uuid.NewString(),
		logger.FieldProvider: string(s.snap.Provider),
		logger.FieldCategory: s.category,
	})

	urls, err := s.fetcher.Fetch(fetchCtx, s.adapter, s.request)
	if latest := s.latestVersion.Load(); latest > issuedUnder {
		logger.CtxInfo(fetchCtx, "Discarding fetch issued under settings version %d, latest is %d", issuedUnder, latest)
		return domain.ErrStaleFetch
	}
	if err != nil {
		var fe *domain.FetchError
		if errors.As(err, &fe) {
			logger.CtxWarn(fetchCtx, "Fetch failed: status=%d, error=%v", fe.StatusCode, fe.Err)
		} else {
			logger.CtxWarn(fetchCtx, "Fetch failed: %v", err)
		}
		return err
	}

	s.batch = urls
	return nil
}

// announce records v as the newest known settings version.
func (s *FeedService) announce(v uint64) {
	for {
		cur := s.latestVersion.Load()
		if v <= cur || s.latestVersion.CompareAndSwap(cur, v) {
			return
		}
	}
}
