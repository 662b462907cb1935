package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestDefaultConfig verifies that DefaultConfig returns valid defaults.
func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Expected defaults to validate, got: %v", err)
	}

	// Feed defaults
	if cfg.Feed.Path != "/ws" {
		t.Errorf("Expected default feed path /ws, got %s", cfg.Feed.Path)
	}
	if cfg.Feed.Backoff.MaxAttempts != 5 {
		t.Errorf("Expected 5 reconnect attempts, got %d", cfg.Feed.Backoff.MaxAttempts)
	}
	if cfg.Feed.Backoff.Base != time.Second {
		t.Errorf("Expected 1s backoff base, got %v", cfg.Feed.Backoff.Base)
	}

	// Render defaults
	if cfg.Render.Smoothing != 0.14 {
		t.Errorf("Expected smoothing 0.14, got %v", cfg.Render.Smoothing)
	}
	if cfg.Render.StaleAfter != 30*time.Second {
		t.Errorf("Expected stale after 30s, got %v", cfg.Render.StaleAfter)
	}
	if cfg.Render.CleanupChance != 0.01 {
		t.Errorf("Expected cleanup chance 0.01, got %v", cfg.Render.CleanupChance)
	}
	if cfg.Render.FrameInterval() != time.Second/30 {
		t.Errorf("Expected 30fps frame interval, got %v", cfg.Render.FrameInterval())
	}

	// Viewport defaults
	if cfg.Viewport.MaxZoom != 6 {
		t.Errorf("Expected max zoom 6, got %v", cfg.Viewport.MaxZoom)
	}

	// Lookup defaults
	if cfg.Lookup.BaseURL != "" {
		t.Error("Expected lookups disabled by default")
	}

	// Assets defaults
	if cfg.Assets.Addr() != "0.0.0.0:8080" {
		t.Errorf("Expected 0.0.0.0:8080, got %s", cfg.Assets.Addr())
	}
}

func TestBackoffPolicy(t *testing.T) {
	p := DefaultConfig().Feed.Backoff.Policy()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	got := p.Schedule()
	if len(got) != len(want) {
		t.Fatalf("Expected %d delays, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Delay %d: expected %v, got %v", i+1, want[i], got[i])
		}
	}
}

// TestLoadNonExistentFile tests that Load returns default config when file doesn't exist.
func TestLoadNonExistentFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/livemap.yaml")
	if err != nil {
		t.Fatalf("Expected no error for non-existent file, got: %v", err)
	}
	if cfg.Render.MarkerPixels != 24 {
		t.Errorf("Expected default marker size 24, got %v", cfg.Render.MarkerPixels)
	}
}

func TestLoadValidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livemap.yaml")
	content := `
feed:
  url: wss://feed.example.com/live
  backoff:
    max_attempts: 3
scene:
  location: /srv/map.svg
render:
  stale_after: 45s
  smoothing: 0.2
viewport:
  max_zoom: 8
logging:
  level: debug
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Feed.URL != "wss://feed.example.com/live" {
		t.Errorf("Expected feed URL from file, got %s", cfg.Feed.URL)
	}
	if cfg.Feed.Backoff.MaxAttempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", cfg.Feed.Backoff.MaxAttempts)
	}
	// Untouched keys in a section keep their defaults.
	if cfg.Feed.Backoff.Base != time.Second {
		t.Errorf("Expected default backoff base, got %v", cfg.Feed.Backoff.Base)
	}
	if cfg.Scene.Location != "/srv/map.svg" {
		t.Errorf("Expected scene location /srv/map.svg, got %s", cfg.Scene.Location)
	}
	if cfg.Render.StaleAfter != 45*time.Second {
		t.Errorf("Expected stale after 45s, got %v", cfg.Render.StaleAfter)
	}
	if cfg.Render.Smoothing != 0.2 {
		t.Errorf("Expected smoothing 0.2, got %v", cfg.Render.Smoothing)
	}
	if cfg.Viewport.MaxZoom != 8 {
		t.Errorf("Expected max zoom 8, got %v", cfg.Viewport.MaxZoom)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livemap.yaml")
	if err := os.WriteFile(path, []byte("feed: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for invalid YAML, got nil")
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"smoothing above one", "render:\n  smoothing: 1.5\n"},
		{"max zoom below one", "viewport:\n  max_zoom: 0.5\n"},
		{"unknown log level", "logging:\n  level: loud\n"},
		{"feed path without slash", "feed:\n  path: ws\n"},
		{"backoff max below base", "feed:\n  backoff:\n    base: 10s\n    max: 1s\n"},
		{"no feed location", "feed:\n  url: \"\"\n  page_url: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "livemap.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatalf("Failed to write test config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Expected validation error, got nil")
			}
		})
	}
}

func TestSaveConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "livemap.yaml")

	cfg := DefaultConfig()
	cfg.Feed.URL = "ws://feed.local:9000/ws"
	cfg.Render.StaleAfter = 12 * time.Second

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read saved config: %v", err)
	}
	if !strings.Contains(string(data), "ws://feed.local:9000/ws") {
		t.Error("Expected saved config to contain the feed URL")
	}
}

// TestConfigRoundTrip tests that Save then Load preserves the values.
func TestConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livemap.yaml")

	original := DefaultConfig()
	original.Feed.URL = "wss://roundtrip.example.com/ws"
	original.Lookup.BaseURL = "https://lookup.example.com"
	original.Render.StaleAfter = 90 * time.Second
	original.Assets.CORSOrigins = []string{"https://a.example.com", "https://b.example.com"}

	if err := original.Save(path); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Feed.URL != original.Feed.URL {
		t.Errorf("Feed URL mismatch: expected %s, got %s", original.Feed.URL, loaded.Feed.URL)
	}
	if loaded.Lookup.BaseURL != original.Lookup.BaseURL {
		t.Errorf("Lookup URL mismatch: expected %s, got %s", original.Lookup.BaseURL, loaded.Lookup.BaseURL)
	}
	if loaded.Render.StaleAfter != original.Render.StaleAfter {
		t.Errorf("StaleAfter mismatch: expected %v, got %v", original.Render.StaleAfter, loaded.Render.StaleAfter)
	}
	if len(loaded.Assets.CORSOrigins) != 2 {
		t.Errorf("Expected 2 CORS origins, got %v", loaded.Assets.CORSOrigins)
	}
}

// TestEnvironmentOverrides tests that LIVEMAP_* variables win over the file.
func TestEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livemap.yaml")
	if err := os.WriteFile(path, []byte("feed:\n  url: ws://from-file/ws\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	t.Setenv("LIVEMAP_FEED_URL", "ws://from-env/ws")
	t.Setenv("LIVEMAP_FEED_BACKOFF_MAX_ATTEMPTS", "7")
	t.Setenv("LIVEMAP_LOOKUP_API_KEY", "secret")
	t.Setenv("LIVEMAP_RENDER_STALE_AFTER", "5s")
	t.Setenv("LIVEMAP_ASSETS_CORS_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Feed.URL != "ws://from-env/ws" {
		t.Errorf("Expected feed URL from env, got %s", cfg.Feed.URL)
	}
	if cfg.Feed.Backoff.MaxAttempts != 7 {
		t.Errorf("Expected 7 attempts from env, got %d", cfg.Feed.Backoff.MaxAttempts)
	}
	if cfg.Lookup.APIKey != "secret" {
		t.Errorf("Expected API key from env, got %q", cfg.Lookup.APIKey)
	}
	if cfg.Render.StaleAfter != 5*time.Second {
		t.Errorf("Expected stale after 5s from env, got %v", cfg.Render.StaleAfter)
	}
	if len(cfg.Assets.CORSOrigins) != 2 || cfg.Assets.CORSOrigins[1] != "https://b.example.com" {
		t.Errorf("Expected two trimmed CORS origins, got %v", cfg.Assets.CORSOrigins)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"LIVEMAP_FEED_URL", "feed.url"},
		{"LIVEMAP_FEED_PAGE_URL", "feed.page_url"},
		{"LIVEMAP_FEED_BACKOFF_MAX_ATTEMPTS", "feed.backoff.max_attempts"},
		{"LIVEMAP_SCENE_RETRY_BASE", "scene.retry.base"},
		{"LIVEMAP_LOOKUP_REQUESTS_PER_SECOND", "lookup.requests_per_second"},
		{"LIVEMAP_CONFIG", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.in); got != tt.want {
			t.Errorf("envTransformFunc(%s): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}
