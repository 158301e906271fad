package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func testSettings() Settings {
	return Settings{
		Provider:     ProviderWaifuPics,
		AutoRefresh:  true,
		RefreshDelay: 10,
		CategoriesSFW: map[Provider][]string{
			ProviderWaifuPics: {"smile", "wave"},
			ProviderWaifuIm:   {"maid"},
		},
		CategoriesNSFW: map[Provider][]string{
			ProviderWaifuPics: {"waifu"},
		},
	}
}

func TestSettings_RefreshDelaySeconds(t *testing.T) {
	s := testSettings()
	if got := s.RefreshDelaySeconds(); got != 10 {
		t.Errorf("expected 10, got %d", got)
	}
	s.AutoRefresh = false
	if got := s.RefreshDelaySeconds(); got != -1 {
		t.Errorf("expected -1 when auto refresh is off, got %d", got)
	}
}

func TestSettings_WithValue(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		raw     string
		wantErr bool
		check   func(*testing.T, Settings)
	}{
		{
			name: "toggle nsfw",
			key:  KeyAllowNSFW,
			raw:  `true`,
			check: func(t *testing.T, s Settings) {
				if !s.AllowNSFW {
					t.Error("expected AllowNSFW to be true")
				}
			},
		},
		{
			name: "switch provider",
			key:  KeyProvider,
			raw:  `"waifu.im"`,
			check: func(t *testing.T, s Settings) {
				if s.Provider != ProviderWaifuIm {
					t.Errorf("expected waifu.im, got %s", s.Provider)
				}
			},
		},
		{
			name: "replace category list",
			key:  "categories.waifu.im.nsfw",
			raw:  `["ero","ecchi"]`,
			check: func(t *testing.T, s Settings) {
				got := s.Categories(ProviderWaifuIm, true)
				if len(got) != 2 || got[0] != "ero" {
					t.Errorf("unexpected list: %v", got)
				}
			},
		},
		{name: "unknown provider", key: KeyProvider, raw: `"nekos.life"`, wantErr: true},
		{name: "wrong type", key: KeyRefreshDelay, raw: `"soon"`, wantErr: true},
		{name: "unknown key", key: "theme", raw: `"dark"`, wantErr: true},
		{name: "bad rating suffix", key: "categories.waifu.pics.maybe", raw: `[]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orig := testSettings()
			got, err := orig.WithValue(tt.key, json.RawMessage(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidSetting) {
					t.Fatalf("expected ErrInvalidSetting, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, got)
		})
	}
}

func TestSettings_WithValueDoesNotMutateOriginal(t *testing.T) {
	orig := testSettings()
	_, err := orig.WithValue(CategoriesKey(ProviderWaifuPics, false), json.RawMessage(`["hug"]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := orig.Categories(ProviderWaifuPics, false); len(got) != 2 {
		t.Errorf("original snapshot was mutated: %v", got)
	}
}

func TestSettings_FetchModeChanged(t *testing.T) {
	prev := testSettings()

	next := prev.Clone()
	next.RefreshDelay = 99
	if next.FetchModeChanged(prev) {
		t.Error("delay change should not count as a fetch mode change")
	}

	next.Provider = ProviderWaifuIm
	if !next.FetchModeChanged(prev) {
		t.Error("provider change should count as a fetch mode change")
	}
}

func TestSettings_Validate(t *testing.T) {
	s := testSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.RefreshDelay = -5
	if err := s.Validate(); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("expected ErrInvalidSetting for negative delay, got %v", err)
	}

	s = testSettings()
	s.Provider = "unknown"
	if err := s.Validate(); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("expected ErrInvalidSetting for unknown provider, got %v", err)
	}
}

func TestSettingsPatch_Entries(t *testing.T) {
	nsfw := true
	p := SettingsPatch{
		AllowNSFW:  &nsfw,
		Categories: map[string][]string{CategoriesKey(ProviderWaifuIm, false): {"maid"}},
	}
	entries := p.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[KeyAllowNSFW] != true {
		t.Errorf("expected allowNSFW entry, got %v", entries[KeyAllowNSFW])
	}
}
