// Package capserver hosts the builtin MCP capability servers: weather data,
// map rendering and travel planning. Each server is a standalone MCP endpoint
// served over streamable HTTP; agents discover and invoke them through the
// bridge.
package capserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"
)

const endpointPath = "/mcp"

// Builtin maps server names to their MCP server constructors.
func Builtin() map[string]func() *server.MCPServer {
	return map[string]func() *server.MCPServer{
		"weather": NewWeatherServer,
		"maps":    NewMapsServer,
		"travel":  NewTravelServer,
	}
}

// Server wraps one MCP server with its HTTP listener.
type Server struct {
	name   string
	port   int
	http   *http.Server
	ln     net.Listener
	logger *slog.Logger
}

// NewServer prepares an HTTP host for mcpSrv on the given port (0 picks an
// ephemeral port). Call Start to bind.
func NewServer(name string, mcpSrv *server.MCPServer, port int, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle(endpointPath, server.NewStreamableHTTPServer(mcpSrv))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","server":%q}`, name)
	})
	return &Server{
		name:   name,
		port:   port,
		http:   &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		logger: logger,
	}
}

// Start binds the listener and serves in the background. The bound address is
// available via Addr once Start returns.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", s.port))
	if err != nil {
		return fmt.Errorf("capserver %s: listen: %w", s.name, err)
	}
	s.ln = ln
	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("capability server stopped", "server", s.name, "error", err)
		}
	}()
	s.logger.Info("capability server listening", "server", s.name, "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound host:port. Empty before Start.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// URL returns the MCP endpoint URL. Empty before Start.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	return "http://" + addr + endpointPath
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
