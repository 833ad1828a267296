package hub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// Server wraps the hub with an HTTP server and lifecycle management.
type Server struct {
	hub    *Hub
	http   *http.Server
	logger *slog.Logger
}

// NewServer creates a server hosting the hub's routes.
func NewServer(config *Config) (*Server, error) {
	config = config.withDefaults()
	if len(config.JWTSecret) == 0 {
		return nil, errors.New("hub: JWTSecret is required")
	}

	h := New(config)

	return &Server{
		hub: h,
		http: &http.Server{
			Addr:         config.Address,
			Handler:      h.Routes(),
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: 0, // WebSocket connections outlive any write timeout
		},
		logger: slog.Default().With("component", "hub.server"),
	}, nil
}

// Hub returns the underlying hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run starts the server and blocks until the context is canceled or a
// termination signal arrives, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "address", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("hub: server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	return s.Shutdown()
}

// Shutdown closes all client connections and stops the HTTP server.
func (s *Server) Shutdown() error {
	s.hub.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.hub.config.ShutdownTimeout)
	defer cancel()

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("hub: shutdown: %w", err)
	}
	return nil
}
