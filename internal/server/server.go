// Package server exposes the betting engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bmmlabs/momentum/internal/domain"
	"github.com/bmmlabs/momentum/internal/server/handler"
	"github.com/bmmlabs/momentum/internal/server/middleware"
	"github.com/bmmlabs/momentum/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	APIKey          string // if empty, API-key authentication is disabled
	RateLimit       int    // requests per window per client IP; 0 disables
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health     *handler.HealthHandler
	Events     *handler.EventHandler
	Bets       *handler.BetHandler
	Settlement *handler.SettlementHandler
	Admin      *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server for the betting engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. Public read routes
// and bet placement sit behind the API-key middleware; event creation,
// resolution, and admin operations additionally require an operator
// signature verified by the operator middleware.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.Health)

	// Event reads.
	mux.HandleFunc("GET /api/events", handlers.Events.List)
	mux.HandleFunc("GET /api/events/{id}", handlers.Events.Get)
	mux.HandleFunc("GET /api/events/{id}/contributions", handlers.Bets.ListByEvent)
	mux.HandleFunc("GET /api/events/{id}/entitlements/{contributor}", handlers.Settlement.Entitlement)

	// Contribution and payout.
	mux.HandleFunc("POST /api/bets", handlers.Bets.Place)
	mux.HandleFunc("POST /api/claims", handlers.Settlement.Claim)
	mux.HandleFunc("POST /api/withdrawals", handlers.Settlement.Withdraw)

	// Operator-signed routes.
	operator := middleware.OperatorAuth(logger)
	mux.Handle("POST /api/events", operator(http.HandlerFunc(handlers.Events.Create)))
	mux.Handle("POST /api/events/{id}/resolve", operator(http.HandlerFunc(handlers.Events.Resolve)))
	mux.Handle("POST /api/admin/pause", operator(http.HandlerFunc(handlers.Admin.SetPaused)))
	mux.Handle("POST /api/admin/operator", operator(http.HandlerFunc(handlers.Admin.TransferOperator)))
	mux.Handle("POST /api/admin/sweep", operator(http.HandlerFunc(handlers.Admin.SweepFees)))
	mux.Handle("POST /api/admin/deposit", operator(http.HandlerFunc(handlers.Admin.Deposit)))

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	return wrap(cfg, mux, limiter, logger)
}

// NewMonitorServer creates a Server exposing only the health endpoint and the
// WebSocket hub. Used by monitor mode, which never mutates engine state.
func NewMonitorServer(cfg Config, health *handler.HealthHandler, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", health.Health)
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}
	return wrap(cfg, mux, limiter, logger)
}

// wrap applies the middleware chain, innermost first, and builds the
// underlying http.Server.
func wrap(cfg Config, mux *http.ServeMux, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if cfg.RateLimit > 0 {
		window := cfg.RateLimitWindow
		if window <= 0 {
			window = time.Minute
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
