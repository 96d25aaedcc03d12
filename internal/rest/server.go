// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

// Package rest assembles the HTTP server: credential store selection,
// ceremony service, middleware stack, and the challenge expiry sweeper.
package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/passkeyd/passkeyd/internal/config"
	"github.com/passkeyd/passkeyd/pkg/metrics"
	"github.com/passkeyd/passkeyd/pkg/ratelimit"
	"github.com/passkeyd/passkeyd/pkg/storage/postgres"
	"github.com/passkeyd/passkeyd/pkg/webauthn"
	webauthnhttp "github.com/passkeyd/passkeyd/pkg/webauthn/http"
)

// Server is the passkeyd HTTP server.
type Server struct {
	server  *http.Server
	service *webauthn.Service
	store   webauthn.CredentialStore
	pg      *postgres.Store
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	cfg     *config.Config

	sweepStop chan struct{}
	sweepDone chan struct{}
	started   time.Time
}

// challengeCounter is implemented by stores that can report how many pending
// challenges they hold. The in-memory store supports it; gauge updates are
// skipped for stores that don't.
type challengeCounter interface {
	CountChallenges() int
}

// NewServer builds the server from validated configuration.
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		logger:    logger,
		cfg:       cfg,
		sweepStop: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}

	switch cfg.Storage.Backend {
	case "postgres":
		pg, err := postgres.New(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres store: %w", err)
		}
		s.pg = pg
		s.store = pg
		logger.Info("using postgres credential store")
	default:
		s.store = webauthn.NewMemoryStore()
		logger.Info("using in-memory credential store")
	}

	service, err := webauthn.NewService(webauthn.ServiceParams{
		Config: &cfg.WebAuthn,
		Store:  s.store,
		Logger: logger,
	})
	if err != nil {
		if s.pg != nil {
			s.pg.Close()
		}
		return nil, fmt.Errorf("webauthn service: %w", err)
	}
	s.service = service

	s.limiter = ratelimit.New(&ratelimit.Config{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerMinute: cfg.RateLimit.RequestsPerMin,
		Burst:             cfg.RateLimit.Burst,
	})

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.setupRouter(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.RecoveryMiddleware())
	r.Use(s.CorrelationMiddleware())
	r.Use(s.LoggingMiddleware())
	r.Use(MetricsMiddleware)

	corsOrigins := s.cfg.Server.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = s.cfg.WebAuthn.RPOrigins
	}
	r.Use(CORSMiddleware(corsOrigins))

	if s.limiter.IsEnabled() {
		r.Use(ratelimit.Middleware(s.limiter))
	}

	r.Get("/health", s.healthHandler)
	r.Head("/health", s.healthHandler)
	r.Get("/health/ready", s.readinessHandler)

	if s.cfg.Metrics.Enabled {
		r.Handle(s.cfg.Metrics.Path, promhttp.Handler())
	}

	handler := webauthnhttp.NewHandler(s.service).WithLogger(s.logger)
	webauthnhttp.MountChi(r, handler)

	return r
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// readinessHandler reports readiness, including store connectivity.
func (s *Server) readinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if s.pg != nil {
		if err := s.pg.Ping(r.Context()); err != nil {
			s.logger.Error("readiness check failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

// Start runs the server until Stop is called. The challenge sweeper runs
// alongside the listener.
func (s *Server) Start() error {
	s.started = time.Now()
	go s.sweepWorker()

	s.logger.Info("starting HTTP server",
		slog.String("addr", s.server.Addr),
		slog.String("rp_id", s.cfg.WebAuthn.RPID))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server and its background workers.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down server")

	close(s.sweepStop)
	<-s.sweepDone
	s.limiter.Stop()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("failed to shutdown server", slog.String("error", err.Error()))
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	if s.pg != nil {
		if err := s.pg.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}

// sweepWorker periodically drops expired challenges and refreshes gauges.
func (s *Server) sweepWorker() {
	defer close(s.sweepDone)

	ticker := time.NewTicker(s.cfg.Storage.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := s.service.SweepExpiredChallenges(context.Background())
			if err != nil {
				s.logger.Error("challenge sweep failed", slog.String("error", err.Error()))
				continue
			}
			metrics.AddChallengesSwept(removed)
			if counter, ok := s.store.(challengeCounter); ok {
				metrics.SetPendingChallenges(float64(counter.CountChallenges()))
			}
			metrics.ServerUptime.Set(time.Since(s.started).Seconds())
		case <-s.sweepStop:
			return
		}
	}
}
