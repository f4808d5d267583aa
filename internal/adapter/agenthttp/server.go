// Package agenthttp is the HTTP surface of one agent process: health and
// agent card endpoints for discovery and readiness, and the task endpoint
// peers and the router call. The matching Caller is the client side.
package agenthttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"agentnet/internal/domain"
)

// TaskHandler processes one inbound task. Implementations run on the
// request's goroutine; the server imposes no serialization across tasks.
type TaskHandler interface {
	HandleTask(ctx context.Context, task domain.TaskRequest) domain.TaskResult
}

// ServerConfig tunes the agent HTTP server.
type ServerConfig struct {
	Addr           string // listen address, e.g. "127.0.0.1:8101"
	RequestsPerMin int
	BurstSize      int
}

// Server exposes one agent over HTTP.
type Server struct {
	cfg       ServerConfig
	card      domain.AgentCard
	handler   TaskHandler
	logger    *slog.Logger
	httpSrv   *http.Server
	boundAddr string
	cancelMW  context.CancelFunc
}

// NewServer creates the HTTP surface for the given agent card.
func NewServer(cfg ServerConfig, card domain.AgentCard, handler TaskHandler, logger *slog.Logger) *Server {
	if cfg.RequestsPerMin <= 0 {
		cfg.RequestsPerMin = 120
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 20
	}
	return &Server{cfg: cfg, card: card, handler: handler, logger: logger}
}

// Start binds the listener and serves in the background. BoundAddr is valid
// once Start returns; the advertised card URL is rewritten to the bound
// address so ephemeral ports propagate to discovery.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("agent listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()
	s.card.URL = "http://" + s.boundAddr

	mwCtx, cancel := context.WithCancel(context.Background())
	s.cancelMW = cancel
	limit := RateLimit(mwCtx, s.cfg.RequestsPerMin, s.cfg.BurstSize)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/card", s.handleCard)
	mux.HandleFunc("/task", s.handleTask)

	s.httpSrv = &http.Server{Handler: limit(mux), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("agent server stopped", "agent", s.card.ID, "error", err)
		}
	}()

	s.logger.Info("agent server started", "agent", s.card.ID, "addr", s.boundAddr)
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancelMW != nil {
		s.cancelMW()
	}
	if s.httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual address the server bound to. Only valid after
// Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"agent":  s.card.ID,
	})
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.card)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var task domain.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid task payload"})
		return
	}
	if task.Content == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "task content is required"})
		return
	}

	result := s.handler.HandleTask(r.Context(), task)
	result.AgentID = s.card.ID
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
