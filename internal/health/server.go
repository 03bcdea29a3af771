package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Server exposes a Registry's Snapshot as a single JSON endpoint. It is the
// plain-struct alternative to a Prometheus exporter spec.md §1 excludes:
// one route, no templates, no auth, grounded on the teacher dashboard's
// chi.NewRouter()+middleware stack trimmed to what a metrics-only surface
// needs.
type Server struct {
	router *chi.Mux
	http   *http.Server
}

// NewServer builds a health Server listening on addr, serving reg's
// snapshot as JSON from GET /health.
func NewServer(addr string, reg *Registry, logger *logrus.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(reg.Snapshot()); err != nil && logger != nil {
			logger.WithError(err).Warn("failed to encode health snapshot")
		}
	})

	return &Server{router: r, http: &http.Server{Addr: addr, Handler: r}}
}

// Handler returns the underlying router, letting callers drive it directly
// (e.g. with httptest) without binding a real listener.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until the process exits or Shutdown is called. Matches
// http.ErrServerClosed on a graceful Shutdown, the same contract the
// teacher's dashboard server exposes.
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server. Nil-safe so callers can defer it
// unconditionally.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
