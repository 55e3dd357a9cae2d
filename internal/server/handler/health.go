package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler serves the health check.
type HealthHandler struct {
	market  Market
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(market Market, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{market: market, started: time.Now(), logger: logger}
}

// HealthCheck reports liveness and whether trading is paused.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"paused":         h.market.Paused(),
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}
