// Package server owns the HTTP listener lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Config holds HTTP server configuration.
type Config struct {
	Host              string
	Port              int
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// DefaultConfig returns default HTTP server configuration. WriteTimeout
// leaves room for a slow local model answering POST /chat.
func DefaultConfig() Config {
	return Config{
		Host:              "0.0.0.0",
		Port:              8000,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Hook runs during Shutdown, after the listener stops accepting requests.
type Hook struct {
	Name string
	Fn   func(ctx context.Context) error
}

// Server wraps the HTTP server and the resources released on shutdown.
type Server struct {
	config Config
	http   *http.Server
	logger *slog.Logger
	hooks  []Hook
}

// NewServer creates an HTTP server serving handler.
func NewServer(handler http.Handler, config Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           handler,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		ReadTimeout:       config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	return &Server{
		config: config,
		http:   httpServer,
		logger: logger,
	}
}

// OnShutdown registers a hook. Hooks run in registration order.
func (s *Server) OnShutdown(name string, fn func(ctx context.Context) error) {
	s.hooks = append(s.hooks, Hook{Name: name, Fn: fn})
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.http.Addr }

// Start listens on the configured address and blocks until the server stops.
// A graceful Shutdown makes it return nil.
func (s *Server) Start(ctx context.Context) error {
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("server listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server", "addr", ln.Addr().String())
	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight ones, then runs the
// hooks. Every hook runs even if an earlier step failed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
	}
	for _, h := range s.hooks {
		if err := h.Fn(ctx); err != nil {
			s.logger.Error("shutdown hook failed", "hook", h.Name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", h.Name, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.logger.Info("server shutdown complete")
	return nil
}
