package statusapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// buildRouter constructs the chi router with all routes and middleware.
func (s *server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.corsMiddleware())

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Post("/session/wake", s.handleWake)
	})

	return r
}

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// corsMiddleware returns a CORS handler configured from the agent config.
func (s *server) corsMiddleware() func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}

	origins := s.cfg.AllowedOrigins

	if len(origins) == 0 {
		// The API binds to loopback by default; reflect any origin.
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool {
			return true
		}
	} else {
		opts.AllowedOrigins = origins
	}

	return cors.Handler(opts)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// statusResponse is the body of GET /api/v1/status.
type statusResponse struct {
	Authenticated    bool   `json:"authenticated"`
	Email            string `json:"email,omitempty"`
	Role             string `json:"role,omitempty"`
	MinutesRemaining int    `json:"minutes_remaining"`
	PendingLocks     int    `json:"pending_locks"`
	CompletedEntries int    `json:"completed_entries"`
}

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatus returns the session and dedup state.
func (s *server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Authenticated:    s.sessions.Authenticated(),
		Email:            s.sessions.Email(),
		Role:             s.sessions.Role(),
		MinutesRemaining: s.sessions.MinutesRemaining(),
		PendingLocks:     s.dedup.PendingLocks(),
		CompletedEntries: s.dedup.CompletedCount(),
	})
}

// handleWake triggers an immediate out-of-band session validation.
func (s *server) handleWake(w http.ResponseWriter, r *http.Request) {
	s.sessions.Wake(r.Context())

	writeJSON(w, http.StatusOK, map[string]bool{
		"valid": s.sessions.Authenticated(),
	})
}
