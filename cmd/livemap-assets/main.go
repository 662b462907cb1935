// Live map asset server
// Serves the map document and aircraft icons the viewer fetches at startup
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unklstewy/ads-livemap/internal/assets"
	"github.com/unklstewy/ads-livemap/internal/logging"
	"github.com/unklstewy/ads-livemap/pkg/config"
)

const version = "0.1.0"

var (
	configPath  = flag.String("config", "", "Path to YAML configuration file (default: search livemap.yaml)")
	port        = flag.Int("port", 0, "HTTP server port (overrides assets.port)")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("livemap-assets %s\n", version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Assets.Port = *port
	}

	closer := logging.Init(logging.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
	defer closer.Close()
	log := logging.With("assets")

	if _, err := os.Stat(cfg.Assets.Dir); err != nil {
		log.Warn().Err(err).Str("dir", cfg.Assets.Dir).Msg("Asset directory not readable")
	}

	handler := assets.New(assets.Options{
		Dir:         cfg.Assets.Dir,
		CORSOrigins: cfg.Assets.CORSOrigins,
		Logger:      log,
	})

	httpServer := &http.Server{
		Addr:         cfg.Assets.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Str("dir", cfg.Assets.Dir).Msg("Serving assets")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("Server failed")
		closer.Close()
		os.Exit(1)
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down server")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}
	log.Info().Msg("Server stopped")
}
