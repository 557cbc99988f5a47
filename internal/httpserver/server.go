package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ShutdownTimeout bounds graceful shutdown, including in-flight uploads.
var ShutdownTimeout = 30 * time.Second

// Server wraps the http.Server with sensible defaults.
type Server struct {
	inner *http.Server
}

// Options tunes the timeouts of the server. Zero values keep the defaults.
type Options struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New constructs a server listening on the provided port. Uploads stream through
// the handler, so read and write timeouts are generous by default.
func New(port int, handler http.Handler, opts Options) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 5 * time.Minute
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Minute
	}
	return &Server{
		inner: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       opts.ReadTimeout,
			WriteTimeout:      opts.WriteTimeout,
			IdleTimeout:       2 * time.Minute,
		},
	}
}

// Addr reports the listen address.
func (s *Server) Addr() string { return s.inner.Addr }

// Start begins serving HTTP traffic. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	if err := s.inner.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully terminates the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
