package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"github.com/timmy/waifeed/internal/domain"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Feed      FeedConfig      `mapstructure:"feed"`
	Defaults  DefaultsConfig  `mapstructure:"defaults"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the connection string for the configured driver.
func (c DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type ProvidersConfig struct {
	UserAgent string         `mapstructure:"user_agent"`
	WaifuPics ProviderConfig `mapstructure:"waifu_pics"`
	WaifuIm   ProviderConfig `mapstructure:"waifu_im"`
}

type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

type FeedConfig struct {
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	FetchRetries  int           `mapstructure:"fetch_retries"`
	BatchSize     int           `mapstructure:"batch_size"`
	SurfaceBuffer int           `mapstructure:"surface_buffer"`
}

// DefaultsConfig seeds the settings store before the user saves anything.
type DefaultsConfig struct {
	Provider     string           `mapstructure:"provider"`
	AllowNSFW    bool             `mapstructure:"allow_nsfw"`
	AutoRefresh  bool             `mapstructure:"auto_refresh"`
	RefreshDelay int              `mapstructure:"refresh_delay"`
	Categories   CategoriesConfig `mapstructure:"categories"`
}

type CategoriesConfig struct {
	WaifuPics RatedCategories `mapstructure:"waifu_pics"`
	WaifuIm   RatedCategories `mapstructure:"waifu_im"`
}

type RatedCategories struct {
	SFW  []string `mapstructure:"sfw"`
	NSFW []string `mapstructure:"nsfw"`
}

// Settings converts the defaults into a settings snapshot.
// Returns:
//   - domain.Settings: version-0 snapshot.
//   - error: non-nil if the defaults are invalid.
func (d DefaultsConfig) Settings() (domain.Settings, error) {
	p, err := domain.ParseProvider(d.Provider)
	if err != nil {
		return domain.Settings{}, fmt.Errorf("defaults.provider: %w", err)
	}
	s := domain.Settings{
		Provider:     p,
		AllowNSFW:    d.AllowNSFW,
		AutoRefresh:  d.AutoRefresh,
		RefreshDelay: d.RefreshDelay,
		CategoriesSFW: map[domain.Provider][]string{
			domain.ProviderWaifuPics: d.Categories.WaifuPics.SFW,
			domain.ProviderWaifuIm:   d.Categories.WaifuIm.SFW,
		},
		CategoriesNSFW: map[domain.Provider][]string{
			domain.ProviderWaifuPics: d.Categories.WaifuPics.NSFW,
			domain.ProviderWaifuIm:   d.Categories.WaifuIm.NSFW,
		},
	}
	return s, s.Validate()
}

// CategoryPatch returns the category lists as a settings patch.
func (d DefaultsConfig) CategoryPatch() domain.SettingsPatch {
	return domain.SettingsPatch{
		Categories: map[string][]string{
			domain.CategoriesKey(domain.ProviderWaifuPics, false): d.Categories.WaifuPics.SFW,
			domain.CategoriesKey(domain.ProviderWaifuPics, true):  d.Categories.WaifuPics.NSFW,
			domain.CategoriesKey(domain.ProviderWaifuIm, false):   d.Categories.WaifuIm.SFW,
			domain.CategoriesKey(domain.ProviderWaifuIm, true):    d.Categories.WaifuIm.NSFW,
		},
	}
}

// Loader reads configuration and can watch the config file for changes.
type Loader struct {
	v *viper.Viper
}

// NewLoader prepares a viper instance for configPath, or for
// ./configs/config.yaml and ./config.yaml when configPath is empty.
func NewLoader(configPath string) *Loader {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("providers.waifu_pics.base_url", "WAIFU_PICS_BASE_URL")
	v.BindEnv("providers.waifu_im.base_url", "WAIFU_IM_BASE_URL")

	return &Loader{v: v}
}

// Load reads the config file (a missing file is not an error) and unmarshals it.
func (l *Loader) Load() (*Config, error) {
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ConfigFile returns the file in use, or "" when running on defaults.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Watch calls onChange with the reloaded config whenever the file changes.
// Reload failures are passed to onError. It does nothing when no file is in use.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) bool {
	if l.ConfigFile() == "" {
		return false
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.unmarshal()
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
	return true
}

// Load reads configuration once.
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/waifeed.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("providers.user_agent", "waifeed/1.0")
	v.SetDefault("providers.waifu_pics.base_url", "https://api.waifu.pics")
	v.SetDefault("providers.waifu_im.base_url", "https://api.waifu.im")

	v.SetDefault("feed.fetch_timeout", 10*time.Second)
	v.SetDefault("feed.fetch_retries", 1)
	v.SetDefault("feed.batch_size", 30)
	v.SetDefault("feed.surface_buffer", 16)

	v.SetDefault("defaults.provider", string(domain.ProviderWaifuPics))
	v.SetDefault("defaults.allow_nsfw", false)
	v.SetDefault("defaults.auto_refresh", true)
	v.SetDefault("defaults.refresh_delay", 10)
	v.SetDefault("defaults.categories.waifu_pics.sfw", []string{
		"waifu", "neko", "shinobu", "megumin", "bully", "cuddle", "cry", "hug",
		"awoo", "kiss", "lick", "pat", "smug", "bonk", "yeet", "blush", "smile",
		"wave", "highfive", "handhold", "nom", "bite", "glomp", "slap", "kick",
		"happy", "wink", "poke", "dance", "cringe",
	})
	v.SetDefault("defaults.categories.waifu_pics.nsfw", []string{"waifu", "neko", "trap"})
	v.SetDefault("defaults.categories.waifu_im.sfw", []string{
		"maid", "waifu", "marin-kitagawa", "mori-calliope", "raiden-shogun",
		"selfies", "uniform", "kamisato-ayaka",
	})
	v.SetDefault("defaults.categories.waifu_im.nsfw", []string{"ero", "ecchi", "hentai"})
}
