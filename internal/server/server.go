// package server contains the soundcheck backend, its middleware, and the loopback redirect catcher
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/soundcheck/internal/shared"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
// Common middleware includes logging, authentication, CORS, rate limiting, etc.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows which path patterns it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the path patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
// Implementations register handlers, apply middleware, and configure the HTTP server.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

const shutdownTimeout = 5 * time.Second

// Server owns one HTTP listener.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	errs       chan error
	logger     *log.Logger
}

// New creates a server for handler on addr. Use ":0" or "127.0.0.1:0" to pick a free port.
func New(addr string, handler http.Handler, logger *log.Logger) *Server {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		errs:   make(chan error, 1),
		logger: logger,
	}
}

// NewBackendHandler assembles the backend router: panic recovery, request logging, then the API
// routes behind a per-client rate limit.
func NewBackendHandler(cfg shared.ServerConfig, api *API, logger *log.Logger) http.Handler {
	router := NewBasicRouter()
	router.Use(Recoverer(logger), RequestLogger(logger))
	api.Routes(router, NewRateLimiter(cfg.RateLimit, cfg.RateBurst))
	return router
}

// NewBackend creates the backend server listening on cfg.Addr().
func NewBackend(cfg shared.ServerConfig, api *API, logger *log.Logger) *Server {
	return New(cfg.Addr(), NewBackendHandler(cfg, api, logger), logger)
}

// Start binds the listener and serves in the background. Listen errors are returned directly;
// later serve errors are reported by [Server.Errors].
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errs <- err
		}
		close(s.errs)
	}()

	s.logger.Info("listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or the configured one before [Server.Start].
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.httpServer.Addr
}

// Errors yields at most one serve error and is closed when serving stops.
func (s *Server) Errors() <-chan error {
	return s.errs
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Run starts the server and blocks until ctx is cancelled or serving fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(); err != nil {
		return err
	}

	select {
	case err := <-s.errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("shutting down")
	return s.Shutdown(shutdownCtx)
}
