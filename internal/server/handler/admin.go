package handler

import (
	"log/slog"
	"net/http"
)

// AdminHandler serves operator-only endpoints.
type AdminHandler struct {
	market Market
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(market Market, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{market: market, logger: logger}
}

// Pause stops all trading except withdrawals.
// POST /api/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.market.Pause(r.Context(), from); err != nil {
		writeEngineError(w, r, h.logger, "pause", err)
		return
	}
	h.logger.InfoContext(r.Context(), "trading paused", slog.String("operator", from.Hex()))
	writeJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

// Unpause resumes trading.
// POST /api/admin/unpause
func (h *AdminHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.market.Unpause(r.Context(), from); err != nil {
		writeEngineError(w, r, h.logger, "unpause", err)
		return
	}
	h.logger.InfoContext(r.Context(), "trading resumed", slog.String("operator", from.Hex()))
	writeJSON(w, http.StatusOK, map[string]bool{"paused": false})
}
