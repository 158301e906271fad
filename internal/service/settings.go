package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/timmy/waifeed/internal/domain"
	"github.com/timmy/waifeed/internal/logger"
)

// SettingsRepository is the persistence used by SettingsStore.
type SettingsRepository interface {
	List(ctx context.Context) ([]domain.SettingEntry, error)
	UpsertMany(ctx context.Context, values map[string]string) error
	Delete(ctx context.Context, keys ...string) error
}

// SettingsStore is the key/value settings store. It keeps the current snapshot
// in memory, persists every write and broadcasts the new snapshot to subscribers.
type SettingsStore struct {
	repo     SettingsRepository
	defaults domain.Settings

	writeMu sync.Mutex // serializes writes

	mu      sync.RWMutex
	current domain.Settings

	subsMu  sync.Mutex
	subs    map[uint64]func(domain.Settings)
	nextSub uint64
}

// NewSettingsStore creates a store seeded with defaults and loads persisted values.
// Parameters:
//   - ctx: context for the initial load.
//   - repo: persistence backend.
//   - defaults: values used for keys never saved.
//
// Returns:
//   - *SettingsStore: loaded store.
//   - error: non-nil if the defaults are invalid or loading fails.
func NewSettingsStore(ctx context.Context, repo SettingsRepository, defaults domain.Settings) (*SettingsStore, error) {
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default settings: %w", err)
	}
	s := &SettingsStore{
		repo:     repo,
		defaults: defaults.Clone(),
		subs:     make(map[uint64]func(domain.Settings)),
	}
	if err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Load rebuilds the snapshot from defaults plus persisted entries.
// Entries that no longer decode are skipped with a warning.
func (s *SettingsStore) Load(ctx context.Context) error {
	entries, err := s.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	next := s.defaults.Clone()
	for _, e := range entries {
		applied, err := next.WithValue(e.Key, json.RawMessage(e.Value))
		if err != nil {
			logger.CtxWarn(ctx, "Skipping stored setting: key=%s, error=%v", e.Key, err)
			continue
		}
		next = applied
	}
	if err := next.Validate(); err != nil {
		logger.CtxWarn(ctx, "Stored settings are invalid, using defaults: %v", err)
		next = s.defaults.Clone()
	}

	s.mu.Lock()
	next.Version = s.current.Version + 1
	s.current = next
	s.mu.Unlock()

	logger.With(logger.Fields{
		logger.FieldCount:   len(entries),
		logger.FieldVersion: next.Version,
	}).Info(ctx, "Settings loaded: provider=%s", next.Provider)
	return nil
}

// Snapshot returns a copy of the current settings.
func (s *SettingsStore) Snapshot() domain.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Get returns the value for key, or def when the key is unknown.
func (s *SettingsStore) Get(key string, def any) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.current.Value(key); ok {
		return v
	}
	return def
}

// Set writes a single key.
func (s *SettingsStore) Set(ctx context.Context, key string, value any) error {
	_, err := s.apply(ctx, map[string]any{key: value})
	return err
}

// Update writes every field present in the patch as one change.
func (s *SettingsStore) Update(ctx context.Context, patch domain.SettingsPatch) (domain.Settings, error) {
	return s.apply(ctx, patch.Entries())
}

// OnChange registers fn to receive every committed snapshot.
// Callbacks run on the writer's goroutine, after the write lock is released.
// Returns a function that removes the subscription.
func (s *SettingsStore) OnChange(fn func(domain.Settings)) func() {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

// Reset removes stored values so the given keys fall back to their defaults.
// With no keys every stored value is removed.
func (s *SettingsStore) Reset(ctx context.Context, keys ...string) (domain.Settings, error) {
	return s.commit(ctx, func(next domain.Settings) (domain.Settings, int, error) {
		if len(keys) == 0 {
			entries, err := s.repo.List(ctx)
			if err != nil {
				return next, 0, fmt.Errorf("failed to list settings: %w", err)
			}
			for _, e := range entries {
				keys = append(keys, e.Key)
			}
		}

		for _, key := range keys {
			def, _ := s.defaults.Value(key)
			raw, err := json.Marshal(def)
			if err != nil {
				return next, 0, fmt.Errorf("%w: %s: %v", domain.ErrInvalidSetting, key, err)
			}
			applied, err := next.WithValue(key, raw)
			if err != nil {
				logger.CtxDebug(ctx, "Dropping stored value without a setting: key=%s", key)
				continue
			}
			next = applied
		}

		if err := s.repo.Delete(ctx, keys...); err != nil {
			return next, 0, fmt.Errorf("failed to reset settings: %w", err)
		}
		return next, len(keys), nil
	})
}

func (s *SettingsStore) apply(ctx context.Context, entries map[string]any) (domain.Settings, error) {
	if len(entries) == 0 {
		return s.Snapshot(), nil
	}

	return s.commit(ctx, func(next domain.Settings) (domain.Settings, int, error) {
		raws := make(map[string]string, len(entries))
		for key, value := range entries {
			raw, err := json.Marshal(value)
			if err != nil {
				return next, 0, fmt.Errorf("%w: %s: %v", domain.ErrInvalidSetting, key, err)
			}
			if next, err = next.WithValue(key, raw); err != nil {
				return next, 0, err
			}
			raws[key] = string(raw)
		}
		if err := next.Validate(); err != nil {
			return next, 0, err
		}
		if err := s.repo.UpsertMany(ctx, raws); err != nil {
			return next, 0, fmt.Errorf("failed to save settings: %w", err)
		}
		return next, len(raws), nil
	})
}

// commit runs mutate on the current snapshot under the write lock, installs
// the result with the next version and broadcasts it once the lock is released.
func (s *SettingsStore) commit(ctx context.Context, mutate func(domain.Settings) (domain.Settings, int, error)) (domain.Settings, error) {
	s.writeMu.Lock()
	next, n, err := mutate(s.Snapshot())
	if err != nil {
		s.writeMu.Unlock()
		return domain.Settings{}, err
	}

	s.mu.Lock()
	next.Version = s.current.Version + 1
	s.current = next
	s.mu.Unlock()
	s.writeMu.Unlock()

	logger.With(logger.Fields{logger.FieldVersion: next.Version}).
		WithCount(n).
		Info(ctx, "Settings saved")

	s.notify(next)
	return next.Clone(), nil
}

func (s *SettingsStore) notify(snap domain.Settings) {
	s.subsMu.Lock()
	subs := make([]func(domain.Settings), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(snap.Clone())
	}
}
