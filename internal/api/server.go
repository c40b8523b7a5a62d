package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"
)

// Server owns the HTTP listener of the status API
type Server struct {
	http   *http.Server
	cancel context.CancelFunc
}

// NewServer wraps handler in an http.Server listening on addr
func NewServer(addr string, handler http.Handler) *Server {
	base, cancel := context.WithCancel(context.Background())
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			// requests, including hijacked websocket streams, end when
			// the base context is cancelled on shutdown
			BaseContext: func(net.Listener) context.Context { return base },
		},
		cancel: cancel,
	}
}

// Listen binds the address so a port conflict is reported before the
// daemon declares itself ready
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return ln, nil
}

// Serve blocks serving ln until Shutdown
func (s *Server) Serve(ln net.Listener) error {
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	return s.http.Shutdown(ctx)
}
