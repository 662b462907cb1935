package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/unklstewy/ads-livemap/pkg/backoff"
)

// EnvPrefix marks environment variables that override configuration.
// LIVEMAP_FEED_URL overrides feed.url, LIVEMAP_FEED_BACKOFF_MAX_ATTEMPTS
// overrides feed.backoff.max_attempts, and so on.
const EnvPrefix = "LIVEMAP_"

// ConfigPathEnvVar names the variable consulted when Load is given no path.
const ConfigPathEnvVar = "LIVEMAP_CONFIG"

// DefaultConfigPaths are searched in order when no path is given.
var DefaultConfigPaths = []string{
	"livemap.yaml",
	"config/livemap.yaml",
	"/etc/livemap/livemap.yaml",
}

// Config represents the complete application configuration.
type Config struct {
	Feed     FeedConfig     `koanf:"feed"`
	Scene    SceneConfig    `koanf:"scene"`
	Icons    IconsConfig    `koanf:"icons"`
	Render   RenderConfig   `koanf:"render"`
	Viewport ViewportConfig `koanf:"viewport"`
	Lookup   LookupConfig   `koanf:"lookup"`
	Logging  LoggingConfig  `koanf:"logging"`
	Assets   AssetsConfig   `koanf:"assets"`
}

// FeedConfig contains the live aircraft feed settings.
type FeedConfig struct {
	// URL is the full WebSocket URL. When empty it is derived from PageURL.
	URL string `koanf:"url" validate:"omitempty,url"`

	// PageURL stands in for the hosting page; its scheme and host pick
	// ws:// or wss:// and the feed host.
	PageURL string `koanf:"page_url" validate:"omitempty,url"`

	// Path is appended to the PageURL host (default: "/ws")
	Path string `koanf:"path" validate:"required,startswith=/"`

	// HandshakeTimeout bounds each dial (default: 10 seconds)
	HandshakeTimeout time.Duration `koanf:"handshake_timeout" validate:"gt=0s"`

	Backoff BackoffConfig `koanf:"backoff"`
}

// BackoffConfig mirrors backoff.Policy.
type BackoffConfig struct {
	Base        time.Duration `koanf:"base" validate:"gt=0s"`
	Max         time.Duration `koanf:"max" validate:"gtefield=Base"`
	Multiplier  float64       `koanf:"multiplier" validate:"gte=1"`
	MaxAttempts int           `koanf:"max_attempts" validate:"gte=0"`
}

// Policy converts the section into a retry policy.
func (b BackoffConfig) Policy() backoff.Policy {
	return backoff.Policy{
		Base:        b.Base,
		Max:         b.Max,
		Multiplier:  b.Multiplier,
		MaxAttempts: b.MaxAttempts,
	}
}

// SceneConfig locates the vector map.
type SceneConfig struct {
	// Location is an http(s) URL or a local file path
	Location string `koanf:"location" validate:"required"`

	// FetchTimeout bounds a single download attempt (default: 15 seconds)
	FetchTimeout time.Duration `koanf:"fetch_timeout" validate:"gt=0s"`

	Retry BackoffConfig `koanf:"retry"`
}

// IconsConfig locates the per-category marker icons.
type IconsConfig struct {
	// BaseURL is where {category}.svg files are served. Empty disables
	// fetching and every marker uses the built-in silhouette.
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`
}

// RenderConfig tunes the marker render loop.
type RenderConfig struct {
	Smoothing     float64       `koanf:"smoothing" validate:"gt=0,lte=1"`
	MarkerPixels  float64       `koanf:"marker_pixels" validate:"gt=0"`
	StaleAfter    time.Duration `koanf:"stale_after" validate:"gt=0s"`
	CleanupChance float64       `koanf:"cleanup_chance" validate:"gte=0,lte=1"`

	// FrameRate is the number of frames per second (default: 30)
	FrameRate int `koanf:"frame_rate" validate:"gte=1,lte=120"`
}

// FrameInterval returns the delay between frames.
func (r RenderConfig) FrameInterval() time.Duration {
	if r.FrameRate <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(r.FrameRate)
}

// ViewportConfig bounds the pan/zoom engine.
type ViewportConfig struct {
	MaxZoom float64 `koanf:"max_zoom" validate:"gte=1"`
}

// LookupConfig configures the username and image lookup service.
type LookupConfig struct {
	// BaseURL of the lookup service. Empty disables lookups.
	BaseURL string `koanf:"base_url" validate:"omitempty,url"`

	// APIKey should be loaded from the environment (LIVEMAP_LOOKUP_API_KEY)
	APIKey string `koanf:"api_key"`

	RequestsPerSecond float64       `koanf:"requests_per_second" validate:"gt=0"`
	Burst             int           `koanf:"burst" validate:"gte=1"`
	Timeout           time.Duration `koanf:"timeout" validate:"gt=0s"`
	CacheSize         int           `koanf:"cache_size" validate:"gte=1"`
	CacheTTL          time.Duration `koanf:"cache_ttl" validate:"gt=0s"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`

	// File receives the log when set. The terminal viewer always needs one
	// because it owns the terminal.
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" validate:"gte=1"`
	MaxBackups int    `koanf:"max_backups" validate:"gte=0"`
}

// AssetsConfig contains the asset server settings.
type AssetsConfig struct {
	// Host is the bind address (default: "0.0.0.0")
	Host string `koanf:"host"`

	// Port is the HTTP port (default: 8080)
	Port int `koanf:"port" validate:"gte=1,lte=65535"`

	// Dir is served under /assets/ and must hold map.svg and icons/
	Dir string `koanf:"dir" validate:"required"`

	CORSOrigins []string `koanf:"cors_origins"`
}

// Addr returns host:port for http.Server.
func (a AssetsConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Feed: FeedConfig{
			PageURL:          "http://localhost:8080/",
			Path:             "/ws",
			HandshakeTimeout: 10 * time.Second,
			Backoff: BackoffConfig{
				Base:        time.Second,
				Max:         30 * time.Second,
				Multiplier:  2.0,
				MaxAttempts: 5,
			},
		},
		Scene: SceneConfig{
			Location:     "http://localhost:8080/assets/map.svg",
			FetchTimeout: 15 * time.Second,
			Retry: BackoffConfig{
				Base:        500 * time.Millisecond,
				Max:         5 * time.Second,
				Multiplier:  2.0,
				MaxAttempts: 3,
			},
		},
		Icons: IconsConfig{
			BaseURL: "http://localhost:8080/assets/icons",
		},
		Render: RenderConfig{
			Smoothing:     0.14,
			MarkerPixels:  24,
			StaleAfter:    30 * time.Second,
			CleanupChance: 0.01,
			FrameRate:     30,
		},
		Viewport: ViewportConfig{
			MaxZoom: 6,
		},
		Lookup: LookupConfig{
			RequestsPerSecond: 2,
			Burst:             4,
			Timeout:           10 * time.Second,
			CacheSize:         256,
			CacheTTL:          10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
		Assets: AssetsConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Dir:         "./assets",
			CORSOrigins: []string{"*"},
		},
	}
}

// Load layers defaults, an optional YAML file and LIVEMAP_* environment
// variables, in that order of increasing priority.
// If path is empty the LIVEMAP_CONFIG variable and DefaultConfigPaths are
// searched. A path that does not exist is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	k := koanf.New(".")
	if err := k.Load(structs.Provider(c, "koanf"), nil); err != nil {
		return fmt.Errorf("failed to flatten config: %w", err)
	}
	data, err := k.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the cross-field rules the tags
// cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Feed.URL == "" && c.Feed.PageURL == "" {
		return errors.New("feed.url or feed.page_url must be set")
	}
	return nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// nestedEnvSections lists env prefixes that map onto a second level.
// Longest first so feed_backoff_ wins over feed_.
var nestedEnvSections = []struct {
	prefix string
	path   string
}{
	{"feed_backoff_", "feed.backoff."},
	{"scene_retry_", "scene.retry."},
}

// envTransformFunc maps LIVEMAP_SECTION_FIELD_NAME to section.field_name.
// LIVEMAP_CONFIG is consumed by Load itself and dropped here.
func envTransformFunc(key string) string {
	if key == ConfigPathEnvVar {
		return ""
	}
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))

	for _, n := range nestedEnvSections {
		if rest, ok := strings.CutPrefix(key, n.prefix); ok {
			return n.path + rest
		}
	}

	section, field, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + field
}

var sliceConfigPaths = []string{
	"assets.cors_origins",
}

// processSliceFields splits comma-separated environment values for the
// slice-typed keys.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		s, ok := k.Get(path).(string)
		if !ok || s == "" {
			continue
		}
		parts := strings.Split(s, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}
