package router

import (
	"encoding/json"
	"log"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/leca/cover-proxy/internal/api"
	"github.com/leca/cover-proxy/internal/cache"
	"github.com/leca/cover-proxy/internal/config"
	"github.com/leca/cover-proxy/internal/handler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds the application dependencies and HTTP router.
type Server struct {
	Cache    cache.Store
	Upstream handler.Upstream
	Config   *config.Config
	Router   chi.Router
}

// New creates a new Server with a fully configured chi router.
func New(store cache.Store, upstream handler.Upstream, cfg *config.Config, logger *slog.Logger) *Server {
	s := &Server{Cache: store, Upstream: upstream, Config: cfg}

	h := handler.New(store, upstream, cfg, logger)

	r := chi.NewRouter()

	// CORS must run first so preflight OPTIONS never reach the handlers.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"Content-Length", "Content-Type", "Content-Range", "Accept-Ranges", "X-Cache"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(api.RecoverJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusNotFound, api.ErrorResponse(9404, "not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		api.WriteJSON(w, http.StatusMethodNotAllowed, api.ErrorResponse(9405, "method not allowed"))
	})

	r.Get("/health", s.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/proxy", h.Proxy)
	r.Get("/split", h.Split)
	r.Get("/thumb", h.Thumb)
	r.Get("/color", h.Color)

	s.Router = r
	return s
}

// Health returns a simple health-check response.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		log.Printf("Health: failed to encode response: %v", err)
	}
}
