// Package server exposes the trading engine over HTTP and websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/cardmarket/internal/domain"
	"github.com/alanyoungcy/cardmarket/internal/server/handler"
	"github.com/alanyoungcy/cardmarket/internal/server/middleware"
	"github.com/alanyoungcy/cardmarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// RateLimit requests per RateWindow per client IP; 0 disables limiting.
	RateLimit  int
	RateWindow time.Duration
	// Status is served at GET /api/status.
	Status handler.StatusInfo
}

// Deps are the collaborators the routes are built from.
type Deps struct {
	Market      handler.Market
	Settlements domain.SettlementStore
	Verifier    middleware.Verifier
	Limiter     domain.RateLimiter
	Hub         *ws.Hub
	// SettleTrigger, when set, lets operators request a settler sweep.
	SettleTrigger chan<- struct{}
}

// Server is the HTTP + websocket API.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain:
// CORS, logging, rate limiting, then signed-request auth.
func NewServer(cfg Config, deps Deps, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http"))
	mux := http.NewServeMux()

	health := handler.NewHealthHandler(deps.Market, logger)
	listings := handler.NewListingHandler(deps.Market, logger)
	auctions := handler.NewAuctionHandler(deps.Market, logger)
	escrow := handler.NewEscrowHandler(deps.Market, logger)
	admin := handler.NewAdminHandler(deps.Market, logger)

	mux.HandleFunc("GET /api/health", health.HealthCheck)
	mux.HandleFunc("GET /api/status", handler.NewStatusHandler(deps.Market, cfg.Status).GetStatus)

	mux.HandleFunc("GET /api/listings", listings.ListActive)
	mux.HandleFunc("GET /api/listings/{id}", listings.GetListing)
	mux.HandleFunc("POST /api/listings", listings.ListCard)
	mux.HandleFunc("DELETE /api/listings/{id}", listings.CancelListing)
	mux.HandleFunc("POST /api/listings/{id}/buy", listings.BuyCard)

	mux.HandleFunc("GET /api/auctions/{id}", auctions.GetAuction)
	mux.HandleFunc("POST /api/auctions", auctions.StartAuction)
	mux.HandleFunc("POST /api/auctions/{id}/bids", auctions.PlaceBid)
	mux.HandleFunc("POST /api/auctions/{id}/finalize", auctions.FinalizeAuction)

	mux.HandleFunc("GET /api/escrow/{address}", escrow.GetBalance)
	mux.HandleFunc("POST /api/escrow/withdraw", escrow.Withdraw)

	mux.HandleFunc("POST /api/admin/pause", admin.Pause)
	mux.HandleFunc("POST /api/admin/unpause", admin.Unpause)
	settle := handler.NewSettleHandler(deps.Market, logger)
	if deps.SettleTrigger != nil {
		settle = settle.WithTriggerChannel(deps.SettleTrigger)
	}
	mux.HandleFunc("POST /api/admin/settle", settle.TriggerSettle)

	if deps.Settlements != nil {
		mux.HandleFunc("GET /api/settlements", handler.NewSettlementHandler(deps.Settlements, logger).List)
	}
	if deps.Hub != nil {
		mux.HandleFunc("GET /ws", deps.Hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.SignedRequests(deps.Verifier, logger)(h)
	if deps.Limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(deps.Limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		handler: h,
		logger:  logger,
	}
}

// Handler returns the full middleware-wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
