// Package assets serves the scene and icon documents the viewer fetches.
package assets

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/unklstewy/ads-livemap/pkg/icons"
)

// Options configures the asset router.
type Options struct {
	// Dir holds map.svg and an icons/ directory of {category}.svg files
	Dir string

	// CORSOrigins allowed to fetch assets (default: any)
	CORSOrigins []string

	Logger zerolog.Logger
}

// Server holds the router and its dependencies.
type Server struct {
	router *chi.Mux
	dir    string
	log    zerolog.Logger
}

// New builds the asset router.
func New(opts Options) *Server {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	s := &Server{
		router: chi.NewRouter(),
		dir:    opts.Dir,
		log:    opts.Logger,
	}
	s.setupRoutes(opts.CORSOrigins)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes(origins []string) {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "image/svg+xml", "application/json"))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/assets/icons", s.handleListIcons)
	r.Get("/assets/icons/{category}.svg", s.handleIcon)

	fileServer := http.StripPrefix("/assets/", http.FileServer(http.Dir(s.dir)))
	r.Handle("/assets/*", fileServer)
}

// requestLogger writes one zerolog line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]any{"status": "ok"}
	if _, err := os.Stat(filepath.Join(s.dir, "map.svg")); err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
		body["error"] = "map.svg missing"
	}
	respondJSON(w, status, body)
}

// handleListIcons reports every category and whether its asset exists.
func (s *Server) handleListIcons(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]bool)
	for _, cat := range icons.Categories() {
		_, err := os.Stat(s.iconPath(cat))
		out[cat] = err == nil
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleIcon(w http.ResponseWriter, r *http.Request) {
	category := chi.URLParam(r, "category")
	if !icons.ValidCategory(category) {
		http.Error(w, "unknown icon category", http.StatusNotFound)
		return
	}

	path := s.iconPath(category)
	if _, err := os.Stat(path); err != nil {
		http.Error(w, "icon not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, path)
}

func (s *Server) iconPath(category string) string {
	return filepath.Join(s.dir, "icons", category+".svg")
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
