// Live map viewer
// Draws a vector map in the terminal and overlays aircraft from a live feed
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/unklstewy/ads-livemap/internal/app"
	"github.com/unklstewy/ads-livemap/internal/logging"
	"github.com/unklstewy/ads-livemap/pkg/config"
	"github.com/unklstewy/ads-livemap/pkg/feed"
	"github.com/unklstewy/ads-livemap/pkg/lookup"
	"github.com/unklstewy/ads-livemap/pkg/render"
	"github.com/unklstewy/ads-livemap/pkg/scene"
)

const version = "0.1.0"

// defaultLogFile is used when logging.file is unset; the terminal belongs
// to the UI.
const defaultLogFile = "livemap.log"

var (
	configPath  = flag.String("config", "", "Path to YAML configuration file (default: search livemap.yaml)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: livemap [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Terminal live map of aircraft from a WebSocket feed.\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables LIVEMAP_<SECTION>_<KEY> override the file, e.g. LIVEMAP_FEED_URL.\n")
	}
	flag.Parse()

	if *showVersion {
		fmt.Printf("livemap %s\n", version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logFile := cfg.Logging.File
	if logFile == "" {
		logFile = defaultLogFile
	}
	closer := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       logFile,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	defer closer.Close()
	log := logging.With("livemap")

	endpoint := cfg.Feed.URL
	if endpoint == "" {
		endpoint, err = feed.Endpoint(cfg.Feed.PageURL, cfg.Feed.Path)
		if err != nil {
			return fmt.Errorf("failed to derive feed URL: %w", err)
		}
	}

	// Without a map there is nothing to draw, so this one is fatal.
	fmt.Fprintf(os.Stderr, "Loading map from %s...\n", cfg.Scene.Location)
	httpClient := &http.Client{Timeout: cfg.Scene.FetchTimeout}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	doc, err := scene.Fetch(ctx, httpClient, cfg.Scene.Location, cfg.Scene.Retry.Policy())
	cancel()
	if err != nil {
		return fmt.Errorf("failed to load map: %w", err)
	}
	log.Info().
		Str("location", cfg.Scene.Location).
		Int("shapes", len(doc.Shapes)).
		Int("anchors", len(doc.Anchors)).
		Str("anchor_kind", doc.AnchorKind.String()).
		Int("skipped_anchors", doc.SkippedAnchors).
		Msg("Map loaded")

	details := newDetailsPanel()
	ctrl := app.New(doc, nil, app.Options{
		Render: render.Config{
			Smoothing:     cfg.Render.Smoothing,
			MarkerPixels:  cfg.Render.MarkerPixels,
			StaleAfter:    cfg.Render.StaleAfter,
			CleanupChance: cfg.Render.CleanupChance,
		},
		MaxZoom: cfg.Viewport.MaxZoom,
		Details: details,
		Logger:  logging.With("controller"),
	})

	lookups := lookup.NewClient(lookup.Config{
		BaseURL:           cfg.Lookup.BaseURL,
		APIKey:            cfg.Lookup.APIKey,
		RequestsPerSecond: cfg.Lookup.RequestsPerSecond,
		Burst:             cfg.Lookup.Burst,
		Timeout:           cfg.Lookup.Timeout,
		CacheSize:         cfg.Lookup.CacheSize,
		CacheTTL:          cfg.Lookup.CacheTTL,
	})

	handler := &programHandler{}
	client := feed.New(feed.Options{
		URL:              endpoint,
		Policy:           cfg.Feed.Backoff.Policy(),
		HandshakeTimeout: cfg.Feed.HandshakeTimeout,
		Logger:           logging.With("feed"),
	}, handler)

	m := newModel(modelDeps{
		ctrl:       ctrl,
		client:     client,
		lookups:    lookups,
		details:    details,
		httpClient: httpClient,
		iconsBase:  cfg.Icons.BaseURL,
		iconPolicy: cfg.Scene.Retry.Policy(),
		frame:      cfg.Render.FrameInterval(),
		log:        log,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	handler.program = p

	log.Info().Str("feed", endpoint).Msg("Starting viewer")
	_, err = p.Run()

	// Close after Run returns: the feed goroutines only Send into the
	// program, and Send is a no-op once it has stopped.
	if cerr := client.Close(); cerr != nil {
		log.Warn().Err(cerr).Msg("Feed close failed")
	}
	if err != nil {
		return fmt.Errorf("viewer failed: %w", err)
	}
	log.Info().Msg("Viewer stopped")
	return nil
}

// programHandler forwards feed events into the Bubble Tea loop. It must
// not touch any UI state itself.
type programHandler struct {
	program *tea.Program
}

func (h *programHandler) OnOpen()                  { h.program.Send(feedOpenMsg{}) }
func (h *programHandler) OnMessage(m feed.Message) { h.program.Send(feedMsg{msg: m}) }
func (h *programHandler) OnDisconnect(err error)   { h.program.Send(feedDisconnectMsg{err: err}) }
func (h *programHandler) OnRetry(attempt int, delay time.Duration) {
	h.program.Send(feedRetryMsg{attempt: attempt, delay: delay})
}
func (h *programHandler) OnFailure(err error) { h.program.Send(feedFailureMsg{err: err}) }
