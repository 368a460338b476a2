// Package api provides the bot's HTTP server: the liveness probe hosting
// platforms poll, Prometheus metrics, and read-only tier endpoints.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the tierbot HTTP server.
type Server struct {
	metricsEnabled bool
	tiers          *TierAPI // nil until the engine is wired
}

// NewServer creates a new API server.
func NewServer() *Server {
	return &Server{}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetTiers sets the tier API.
func (s *Server) SetTiers(t *TierAPI) { s.tiers = t }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(corsMiddleware)

	// Liveness for Railway/Render keep-alive pings
	alive := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Alive"))
	}
	r.Get("/", alive)
	r.Get("/health", alive)

	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	if s.tiers != nil {
		r.Route("/api", func(r chi.Router) {
			r.Get("/tiers", s.tiers.HandleTiers)
			r.Get("/resolve", s.tiers.HandleResolve)
			r.Get("/progress/{userID}", s.tiers.HandleProgress)
			r.Get("/stats", s.tiers.HandleStats)
		})
	}

	return r
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    "error",
		},
	})
}

// corsMiddleware adds CORS headers for dashboards on other origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
