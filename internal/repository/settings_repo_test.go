package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/timmy/waifeed/internal/config"
)

func newTestRepo(t *testing.T) *SettingsRepository {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "settings.db"),
		AutoMigrate: true,
	})
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	return NewSettingsRepository(db)
}

func TestSettingsRepository_UpsertAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertMany(ctx, map[string]string{"allowNSFW": "false", "provider": `"waifu.pics"`}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.UpsertMany(ctx, map[string]string{"allowNSFW": "true"}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	entries, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	// List orders by key.
	if entries[0].Key != "allowNSFW" || entries[0].Value != "true" {
		t.Errorf("expected updated value true, got %s=%s", entries[0].Key, entries[0].Value)
	}
}

func TestSettingsRepository_Delete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if err := repo.UpsertMany(ctx, map[string]string{"refreshDelay": "5"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Delete(ctx, "refreshDelay"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	entries, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no entries after delete, got %v", entries)
	}
}

func TestInitDB_UnknownDriver(t *testing.T) {
	if _, err := InitDB(&config.DatabaseConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
