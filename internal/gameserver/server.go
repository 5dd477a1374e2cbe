// Package gameserver exposes the match orchestration core over HTTP: match
// creation, joining, action submission, and a WebSocket feed of match
// snapshots for viewers.
package gameserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/hypernova/arena/internal/config"
	"github.com/hypernova/arena/internal/game/match"
)

// Server is the HTTP front of the orchestrator. It implements the lifecycle
// Service contract: Start blocks serving requests, Stop drains in-flight
// requests before returning.
type Server struct {
	orch   *match.Orchestrator
	logger *zap.Logger
	http   *http.Server
}

// NewServer creates a Server listening on the configured address.
//
// Precondition: orch and logger must be non-nil.
func NewServer(cfg config.HTTPConfig, orch *match.Orchestrator, logger *zap.Logger) *Server {
	s := &Server{
		orch:   orch,
		logger: logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /games/create", s.handleCreate)
	mux.HandleFunc("POST /games/join", s.handleJoin)
	mux.HandleFunc("POST /games/move", s.handleMove)
	mux.HandleFunc("GET /games/watch", s.handleWatch)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.http = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the routing handler, used directly by httptest servers.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start serves HTTP until Stop is called.
//
// Postcondition: Returns nil on graceful shutdown, the listen error otherwise.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown incomplete", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the canonical error body {"error": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
