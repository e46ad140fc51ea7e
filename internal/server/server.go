// Package server exposes health and run status over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/amureki/deadlock-changelog-bot/internal/crawler/engine"
	"github.com/amureki/deadlock-changelog-bot/internal/logger"
)

// StatusProvider is satisfied by *engine.Status.
type StatusProvider interface {
	Snapshot() engine.Snapshot
}

// Server is the status HTTP server.
type Server struct {
	status StatusProvider
	mode   string
	router chi.Router
	logger *logger.Logger
}

// New creates a server reporting status under the given run mode.
func New(status StatusProvider, mode string, log *logger.Logger) *Server {
	s := &Server{
		status: status,
		mode:   mode,
		logger: log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)

	s.router = r
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Status server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.status.Snapshot()

	var ago string
	if !snap.LastCycleEnd.IsZero() {
		ago = humanize.Time(snap.LastCycleEnd)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Mode         string `json:"mode"`
		LastCycleAgo string `json:"last_cycle_ago,omitempty"`
		engine.Snapshot
	}{
		Mode:         s.mode,
		LastCycleAgo: ago,
		Snapshot:     snap,
	})
}
