// Package server exposes the bot registry over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/alanyoungcy/alertbot/internal/server/handler"
	"github.com/alanyoungcy/alertbot/internal/server/middleware"
	"github.com/alanyoungcy/alertbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKey guards everything except health, /ws and alert webhooks.
	// Empty disables auth.
	APIKey string

	AlertRateLimit  int
	AlertRateWindow time.Duration

	// Observer receives request latencies; nil disables instrumentation.
	Observer middleware.Observer
}

// Handlers aggregates the HTTP handlers registered on the mux.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Bots     *handler.BotHandler
	Alerts   *handler.AlertHandler
	Prices   *handler.PriceHandler
	Datasets *handler.DatasetHandler
	Activity *handler.ActivityHandler
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

// Server is the HTTP + WebSocket API.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers routes and builds the middleware chain. wsHub and
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           buildHandler(cfg, handlers, wsHub, limiter, logger),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

func buildHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	mux.HandleFunc("GET /api/bots", handlers.Bots.ListBots)
	mux.HandleFunc("POST /api/bots", handlers.Bots.CreateBot)
	mux.HandleFunc("GET /api/bots/{id}", handlers.Bots.GetBot)
	mux.HandleFunc("DELETE /api/bots/{id}", handlers.Bots.DeleteBot)
	mux.HandleFunc("GET /api/bots/{id}/logs", handlers.Bots.ListLogs)
	mux.HandleFunc("GET /api/bots/{id}/trades", handlers.Bots.ListTrades)
	mux.HandleFunc("POST /api/bots/{id}/alerts", handlers.Alerts.PostAlert)

	mux.HandleFunc("POST /api/ticks", handlers.Prices.PostTicks)
	mux.HandleFunc("GET /api/prices", handlers.Prices.GetPrices)
	mux.HandleFunc("GET /api/datasets", handlers.Datasets.ListDatasets)
	mux.HandleFunc("GET /api/logs/recent", handlers.Activity.RecentLogs)
	mux.HandleFunc("GET /api/audit", handlers.Activity.ListAudit)

	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.AlertRateLimit, cfg.AlertRateWindow, middleware.AlertKey, logger)(h)
	h = middleware.Auth(cfg.APIKey, middleware.PublicPaths)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.Instrument(cfg.Observer)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
