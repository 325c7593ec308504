package transport

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Server wraps the HTTP listener
type Server struct {
	httpServer *http.Server
}

// NewServer creates a server for handler on addr
func NewServer(addr string, handler http.Handler, timeout, idleTimeout time.Duration) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			MaxHeaderBytes:    1 << 20,
			ReadTimeout:       timeout,
			WriteTimeout:      timeout,
			IdleTimeout:       idleTimeout,
			ReadHeaderTimeout: 3 * time.Second,
		},
	}
}

// Run listens until Shutdown is called. It returns nil after a clean shutdown.
func (s *Server) Run() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
