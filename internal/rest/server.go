// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-capsule.
//
// go-capsule is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rest exposes the synchronous boundaries of the release core over
// HTTP: trustee deposits, recipient secret retrieval, recipient onboarding
// and the owner abort. Owner endpoints sit behind JWT bearer auth; recipient
// endpoints authenticate with the scoped capsule token instead.
package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jeremyhahn/go-capsule/internal/notify"
	"github.com/jeremyhahn/go-capsule/pkg/capsule"
	"github.com/jeremyhahn/go-capsule/pkg/health"
	"github.com/jeremyhahn/go-capsule/pkg/logging"
	"github.com/jeremyhahn/go-capsule/pkg/metrics"
	"github.com/jeremyhahn/go-capsule/pkg/ratelimit"
)

// Server is the capsule REST API server.
type Server struct {
	server   *http.Server
	handlers *HandlerContext
	host     string
	port     int
	jwt      *JWTConfig
	limiter  *ratelimit.Limiter
	checker  *health.Checker
	log      *logging.Logger
	metrics  bool
}

// Config holds the REST server configuration.
type Config struct {
	// Host and Port form the listen address (default: localhost:8443).
	Host string
	Port int

	// Service is the release core. Required.
	Service *capsule.Service

	// Notifier dispatches the events returned by synchronous operations.
	// Nil means events are dropped after logging.
	Notifier notify.Notifier

	// JWT guards the owner endpoints when non-nil.
	JWT *JWTConfig

	// RateLimit throttles the anonymous endpoints when non-nil. The
	// caller owns the limiter and its Stop.
	RateLimit *ratelimit.Limiter

	// Health backs the readiness probe. Nil means an empty checker,
	// which always reports ready.
	Health *health.Checker

	// Version is the API version string.
	Version string

	// Metrics exposes the Prometheus endpoint when true.
	Metrics bool

	// Logger receives request logging. Nil means a fresh non-debug logger.
	Logger *logging.Logger

	// ReadTimeout, WriteTimeout and IdleTimeout bound the HTTP server.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new REST API server.
func NewServer(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Service == nil {
		return nil, fmt.Errorf("service is required")
	}

	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 8443
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}

	log := cfg.Logger
	if log == nil {
		log = logging.NewLogger(false)
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	checker := cfg.Health
	if checker == nil {
		checker = health.NewChecker()
	}

	server := &Server{
		handlers: NewHandlerContext(cfg.Service, notifier, log, cfg.Version),
		host:     cfg.Host,
		port:     cfg.Port,
		jwt:      cfg.JWT,
		limiter:  cfg.RateLimit,
		checker:  checker,
		log:      log,
		metrics:  cfg.Metrics,
	}

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.setupRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return server, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(RecoveryMiddleware(s.log))
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(s.log))
	r.Use(metrics.HTTPMiddleware)

	r.Get("/healthz", s.handlers.HealthHandler)
	r.Get("/readyz", s.readyHandler)
	if s.metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api/capsules/{id}", func(r chi.Router) {
		// Trustee and recipient endpoints carry their own credentials:
		// the share commitment and the scoped capsule token. They are
		// open to anonymous clients, so they get the rate limiter.
		r.Group(func(r chi.Router) {
			r.Use(RateLimitMiddleware(s.limiter))
			r.Post("/shares", s.handlers.DepositHandler)
			r.Post("/secret", s.handlers.SecretHandler)
			r.Post("/recipients/confirm", s.handlers.ConfirmRecipientHandler)
		})

		// Owner endpoints sit behind bearer auth.
		r.Group(func(r chi.Router) {
			r.Use(JWTMiddleware(s.jwt))
			r.Post("/abort", s.handlers.AbortHandler)
			r.Post("/recipients", s.handlers.AddRecipientHandler)
		})
	})

	return r
}

// readyHandler runs the readiness checks and reports 503 until every
// dependency passes.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	results := s.checker.Ready(r.Context())
	status := health.AggregateStatus(results)

	code := http.StatusOK
	if status != health.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, ReadinessResponse{
		Status: string(status),
		Uptime: s.checker.Uptime().Round(time.Second).String(),
		Checks: results,
	}, code)
}

// Start starts the REST API server.
func (s *Server) Start() error {
	s.log.Info("starting HTTP server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the REST API server.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Handler returns the configured router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Port returns the port the server listens on.
func (s *Server) Port() int {
	return s.port
}
