// Package api implements the stub Segment Repository: the REST contract the
// segment client talks to, backed by an in-memory or PostgreSQL store.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/ignite/segment-rules/internal/config"
)

// Server represents the stub API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new stub server. Allowed origins and auth tokens come
// from cfg unless d already sets them.
func NewServer(cfg config.ServerConfig, d Deps) *Server {
	if len(d.AllowedOrigins) == 0 {
		d.AllowedOrigins = cfg.AllowedOrigins
	}
	if d.Auth == nil {
		d.Auth = NewTokenAuth(cfg.AccessToken, cfg.RefreshToken)
	}
	return &Server{
		config:  cfg,
		handler: SetupRoutes(d),
	}
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
