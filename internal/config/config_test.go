package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/timmy/waifeed/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "server:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Feed.FetchTimeout != 10*time.Second {
		t.Errorf("expected 10s fetch timeout, got %s", cfg.Feed.FetchTimeout)
	}
	if cfg.Providers.WaifuPics.BaseURL != "https://api.waifu.pics" {
		t.Errorf("unexpected waifu.pics base url: %s", cfg.Providers.WaifuPics.BaseURL)
	}
	if len(cfg.Defaults.Categories.WaifuIm.SFW) == 0 {
		t.Error("expected default waifu.im categories")
	}
}

func TestLoad_FileOverrides(t *testing.T) {
	path := writeConfig(t, `
feed:
  fetch_timeout: 3s
defaults:
  provider: waifu.im
  allow_nsfw: true
  auto_refresh: false
  categories:
    waifu_im:
      nsfw: [ero]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Feed.FetchTimeout != 3*time.Second {
		t.Errorf("expected 3s, got %s", cfg.Feed.FetchTimeout)
	}

	s, err := cfg.Defaults.Settings()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Provider != domain.ProviderWaifuIm || !s.AllowNSFW || s.AutoRefresh {
		t.Errorf("unexpected snapshot: %+v", s)
	}
	if got := s.ActiveCategories(); len(got) != 1 || got[0] != "ero" {
		t.Errorf("expected [ero], got %v", got)
	}
}

func TestDefaults_InvalidProvider(t *testing.T) {
	d := DefaultsConfig{Provider: "nekos.best"}
	if _, err := d.Settings(); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	sqlite := DatabaseConfig{Driver: "sqlite", Path: "/tmp/x.db"}
	if sqlite.DSN() != "/tmp/x.db" {
		t.Errorf("unexpected sqlite dsn: %s", sqlite.DSN())
	}
	pg := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", DBName: "feed", SSLMode: "disable"}
	want := "host=db port=5432 user=u password=p dbname=feed sslmode=disable"
	if pg.DSN() != want {
		t.Errorf("expected %q, got %q", want, pg.DSN())
	}
}
