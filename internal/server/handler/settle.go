package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// SettleHandler lets an operator request an immediate settler sweep instead
// of waiting for the next tick.
type SettleHandler struct {
	market    Market
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending runs one sweep
}

// NewSettleHandler creates a SettleHandler.
func NewSettleHandler(market Market, logger *slog.Logger) *SettleHandler {
	return &SettleHandler{market: market, logger: logger}
}

// WithTriggerChannel sets the channel the settler loop receives sweep
// requests on.
func (h *SettleHandler) WithTriggerChannel(ch chan<- struct{}) *SettleHandler {
	h.triggerCh = ch
	return h
}

// TriggerSettle enqueues one sweep with a non-blocking send. Operator only.
// POST /api/admin/settle
func (h *SettleHandler) TriggerSettle(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	if !h.market.IsOperator(from) {
		writeError(w, http.StatusForbidden, "operator only")
		return
	}
	if h.triggerCh == nil {
		writeError(w, http.StatusServiceUnavailable, "auto-settler is not running")
		return
	}
	h.logger.InfoContext(r.Context(), "handler: settle sweep requested", slog.String("operator", from.Hex()))
	select {
	case h.triggerCh <- struct{}{}:
	default:
		// already requested and not yet consumed
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      "settle sweep enqueued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
