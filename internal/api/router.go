package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/clipgif/internal/api/handler"
	mw "github.com/iconidentify/clipgif/internal/api/middleware"
)

// Handlers groups the HTTP handlers the router mounts.
type Handlers struct {
	Health  *handler.HealthHandler
	GIF     *handler.GIFHandler
	Event   *handler.EventHandler
	WS      *handler.WSHandler
	History *handler.HistoryHandler
}

// Config holds router settings.
type Config struct {
	APIKey         string
	AllowedOrigins []string
	// RequestTimeout bounds non-streaming requests, including ?wait=true.
	RequestTimeout time.Duration
}

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(h Handlers, cfg Config, logger *slog.Logger) *chi.Mux {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 6 * time.Minute
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))

	// CORS for browser extension
	r.Use(mw.CORS(cfg.AllowedOrigins))

	// Health endpoints (no auth)
	r.Get("/health", h.Health.Live)
	r.Get("/ready", h.Health.Ready)

	// API v1 (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(cfg.APIKey))

		// Long-lived streams; no request timeout.
		r.Get("/events/stream", h.Event.Stream)
		r.Get("/ws", h.WS.Progress)
		r.Get("/ws/content", h.WS.Content)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(cfg.RequestTimeout))

			r.Get("/stats", h.Health.Stats)

			r.Post("/extract", h.GIF.Extract)
			r.Post("/encode", h.GIF.Encode)
			r.Post("/gifs", h.GIF.Create)

			r.Get("/jobs", h.GIF.ListJobs)
			r.Get("/jobs/{jobID}", h.GIF.GetJob)
			r.Get("/jobs/{jobID}/gif", h.GIF.GetGIF)
			r.Delete("/jobs/{jobID}", h.GIF.CancelJob)

			r.Get("/queue", h.GIF.Queue)
			r.Get("/encoders", h.GIF.Encoders)
			r.Get("/presets", h.GIF.Presets)

			r.Get("/events", h.Event.List)
			r.Get("/events/stats", h.Event.Stats)

			r.Get("/history", h.History.List)
		})
	})

	return r
}
