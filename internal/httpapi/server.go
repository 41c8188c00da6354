// Package httpapi serves the bot's read-only status surface: health,
// Prometheus metrics, latest pair scores, and the current allocation plan.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/sileniced/bntradebot/internal/app"
	"github.com/sileniced/bntradebot/internal/metrics"
	"github.com/sileniced/bntradebot/internal/persistence"
)

// StatusProvider exposes the latest cycle state.
type StatusProvider interface {
	Snapshot() app.Status
}

// Server is the read-only HTTP server.
type Server struct {
	router  *mux.Router
	server  *http.Server
	status  StatusProvider
	reports persistence.ReportStore // nil hides /reports
	metrics *metrics.Registry
}

// NewServer wires the routes. reports and reg may be nil.
func NewServer(listen string, status StatusProvider, reports persistence.ReportStore, reg *metrics.Registry) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		status:  status,
		reports: reports,
		metrics: reg,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/scores", s.handleScores).Methods("GET")
	s.router.HandleFunc("/allocation", s.handleAllocation).Methods("GET")
	if s.reports != nil {
		s.router.HandleFunc("/reports", s.handleReports).Methods("GET")
	}
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("listen", s.server.Addr).Msg("http server started")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		log.Info().Msg("http server stopped")
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.status.Snapshot()
	healthy := status.LastError == ""
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"healthy":    healthy,
		"last_cycle": status.LastCycle,
		"last_error": status.LastError,
	})
}

func (s *Server) handleScores(w http.ResponseWriter, r *http.Request) {
	status := s.status.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"scores":     status.Scores,
		"last_cycle": status.LastCycle,
	})
}

func (s *Server) handleAllocation(w http.ResponseWriter, r *http.Request) {
	status := s.status.Snapshot()
	if status.Plan == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no cycle has completed yet"})
		return
	}
	writeJSON(w, http.StatusOK, status.Plan)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	limit := 20
	reports, err := s.reports.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("reports query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "reports unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}
