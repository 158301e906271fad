package domain

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"
)

// Setting keys persisted by the settings store.
const (
	KeyAllowNSFW    = "allowNSFW"
	KeyAutoRefresh  = "autoRefresh"
	KeyProvider     = "provider"
	KeyRefreshDelay = "refreshDelay"

	categoriesKeyPrefix = "categories."
)

// CategoriesKey returns the setting key holding the category list for a provider and rating,
// e.g. "categories.waifu.pics.sfw".
func CategoriesKey(p Provider, nsfw bool) string {
	return categoriesKeyPrefix + string(p) + "." + Rating(nsfw)
}

// Settings is an immutable snapshot of user preferences.
// Snapshots are replaced wholesale; use Clone before modifying maps.
type Settings struct {
	Provider       Provider              `json:"provider"`
	AllowNSFW      bool                  `json:"allowNsfw"`
	AutoRefresh    bool                  `json:"autoRefresh"`
	RefreshDelay   int                   `json:"refreshDelay"`
	CategoriesSFW  map[Provider][]string `json:"categoriesSfw"`
	CategoriesNSFW map[Provider][]string `json:"categoriesNsfw"`

	// Version increases on every committed change.
	Version uint64 `json:"version"`
}

// Categories returns the category list for a provider and rating.
func (s Settings) Categories(p Provider, nsfw bool) []string {
	if nsfw {
		return s.CategoriesNSFW[p]
	}
	return s.CategoriesSFW[p]
}

// ActiveCategories returns the list matching the snapshot's own provider and rating.
func (s Settings) ActiveCategories() []string {
	return s.Categories(s.Provider, s.AllowNSFW)
}

// RefreshDelaySeconds returns the delay reported to the display surface,
// or -1 when automatic re-advance is disabled.
func (s Settings) RefreshDelaySeconds() int {
	if !s.AutoRefresh {
		return -1
	}
	return s.RefreshDelay
}

// FetchModeChanged reports whether the provider, rating or batch mode differ from prev.
func (s Settings) FetchModeChanged(prev Settings) bool {
	return s.Provider != prev.Provider ||
		s.AllowNSFW != prev.AllowNSFW ||
		s.AutoRefresh != prev.AutoRefresh
}

// Clone returns a deep copy of the snapshot.
func (s Settings) Clone() Settings {
	out := s
	out.CategoriesSFW = cloneCategories(s.CategoriesSFW)
	out.CategoriesNSFW = cloneCategories(s.CategoriesNSFW)
	return out
}

func cloneCategories(m map[Provider][]string) map[Provider][]string {
	out := make(map[Provider][]string, len(m))
	for p, list := range m {
		out[p] = slices.Clone(list)
	}
	return out
}

// Validate checks the snapshot for values the controller cannot work with.
// Empty category lists are allowed; selection reports them as ErrNoCategory.
func (s Settings) Validate() error {
	if _, err := ParseProvider(string(s.Provider)); err != nil {
		return fmt.Errorf("%w: provider: %v", ErrInvalidSetting, err)
	}
	if s.RefreshDelay < 0 {
		return fmt.Errorf("%w: refreshDelay must be >= 0, got %d", ErrInvalidSetting, s.RefreshDelay)
	}
	return nil
}

// Value returns the current value stored under a setting key.
func (s Settings) Value(key string) (any, bool) {
	switch key {
	case KeyAllowNSFW:
		return s.AllowNSFW, true
	case KeyAutoRefresh:
		return s.AutoRefresh, true
	case KeyProvider:
		return string(s.Provider), true
	case KeyRefreshDelay:
		return s.RefreshDelay, true
	}
	if p, nsfw, ok := parseCategoriesKey(key); ok {
		list := s.Categories(p, nsfw)
		return slices.Clone(list), list != nil
	}
	return nil, false
}

// WithValue returns a copy of the snapshot with a JSON-encoded value applied to key.
// The version is left unchanged.
func (s Settings) WithValue(key string, raw json.RawMessage) (Settings, error) {
	out := s.Clone()
	var err error
	switch key {
	case KeyAllowNSFW:
		err = json.Unmarshal(raw, &out.AllowNSFW)
	case KeyAutoRefresh:
		err = json.Unmarshal(raw, &out.AutoRefresh)
	case KeyRefreshDelay:
		err = json.Unmarshal(raw, &out.RefreshDelay)
	case KeyProvider:
		var name string
		if err = json.Unmarshal(raw, &name); err == nil {
			out.Provider, err = ParseProvider(name)
		}
	default:
		p, nsfw, ok := parseCategoriesKey(key)
		if !ok {
			return s, fmt.Errorf("%w: unknown key %q", ErrInvalidSetting, key)
		}
		var list []string
		if err = json.Unmarshal(raw, &list); err == nil {
			if nsfw {
				out.CategoriesNSFW[p] = list
			} else {
				out.CategoriesSFW[p] = list
			}
		}
	}
	if err != nil {
		return s, fmt.Errorf("%w: %s: %v", ErrInvalidSetting, key, err)
	}
	return out, nil
}

func parseCategoriesKey(key string) (Provider, bool, bool) {
	rest, ok := strings.CutPrefix(key, categoriesKeyPrefix)
	if !ok {
		return "", false, false
	}
	idx := strings.LastIndex(rest, ".")
	if idx <= 0 {
		return "", false, false
	}
	p, err := ParseProvider(rest[:idx])
	if err != nil {
		return "", false, false
	}
	switch rest[idx+1:] {
	case "sfw":
		return p, false, true
	case "nsfw":
		return p, true, true
	}
	return "", false, false
}

// SettingsPatch carries a partial settings update. Nil fields are left unchanged.
type SettingsPatch struct {
	Provider     *string             `json:"provider,omitempty"`
	AllowNSFW    *bool               `json:"allowNsfw,omitempty"`
	AutoRefresh  *bool               `json:"autoRefresh,omitempty"`
	RefreshDelay *int                `json:"refreshDelay,omitempty"`
	Categories   map[string][]string `json:"categories,omitempty"` // keyed by CategoriesKey
}

// Entries flattens the patch into key/value pairs.
func (p SettingsPatch) Entries() map[string]any {
	out := make(map[string]any)
	if p.Provider != nil {
		out[KeyProvider] = *p.Provider
	}
	if p.AllowNSFW != nil {
		out[KeyAllowNSFW] = *p.AllowNSFW
	}
	if p.AutoRefresh != nil {
		out[KeyAutoRefresh] = *p.AutoRefresh
	}
	if p.RefreshDelay != nil {
		out[KeyRefreshDelay] = *p.RefreshDelay
	}
	for k, v := range p.Categories {
		out[k] = v
	}
	return out
}

// SettingEntry is one persisted key/value pair. Value holds JSON.
type SettingEntry struct {
	Key       string    `gorm:"type:text;primaryKey" json:"key"`
	Value     string    `gorm:"type:text;not null" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for SettingEntry.
func (SettingEntry) TableName() string {
	return "settings"
}
