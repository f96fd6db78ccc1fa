// Package server exposes the link engine, the skip zone detector and the
// renderers over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Veraticus/autolinks/pkg/engine"
	"github.com/Veraticus/autolinks/pkg/logger"
	"github.com/Veraticus/autolinks/pkg/render"
	"github.com/Veraticus/autolinks/pkg/types"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// Config holds configuration for the API server.
type Config struct {
	// Rules are used by requests that do not carry their own.
	Rules []types.Rule
	// RateLimitRequests per RateLimitWindow and client IP. Zero disables
	// rate limiting.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	// Registry is served on /metrics when set.
	Registry *prometheus.Registry
}

// Server is the HTTP server for the API.
type Server struct {
	matcher  *engine.Matcher
	renderer *render.Renderer
	rules    []types.Rule
	logger   logger.Logger
	router   *chi.Mux
}

// New creates a server with chi router and middleware stack.
func New(matcher *engine.Matcher, renderer *render.Renderer, log logger.Logger, cfg *Config) *Server {
	if log == nil {
		log = logger.Noop()
	}
	if matcher == nil {
		matcher = engine.New()
	}
	if renderer == nil {
		renderer = render.New(matcher)
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.RateLimitWindow == 0 {
		cfg.RateLimitWindow = time.Minute
	}

	s := &Server{
		matcher:  matcher,
		renderer: renderer,
		rules:    cfg.Rules,
		logger:   log,
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(chimiddleware.Recoverer)
	if cfg.RateLimitRequests > 0 {
		r.Use(RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	r.Post("/v1/validate", s.handleValidate)
	r.Post("/v1/links", s.handleLinks)
	r.Post("/v1/zones", s.handleZones)
	r.Post("/v1/render", s.handleRender)
	r.Get("/health", s.handleHealth)
	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}
