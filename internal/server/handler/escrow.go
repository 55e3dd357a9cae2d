package handler

import (
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// EscrowHandler serves pending-balance endpoints.
type EscrowHandler struct {
	market Market
	logger *slog.Logger
}

// NewEscrowHandler creates an EscrowHandler.
func NewEscrowHandler(market Market, logger *slog.Logger) *EscrowHandler {
	return &EscrowHandler{market: market, logger: logger}
}

// GetBalance returns the pending escrow balance of an address.
// GET /api/escrow/{address}
func (h *EscrowHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	addr := common.HexToAddress(raw)
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"pending": h.market.GetPendingBalance(addr),
	})
}

// Withdraw pays out the caller's whole pending balance.
// POST /api/escrow/withdraw
func (h *EscrowHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	amount, err := h.market.WithdrawFunds(r.Context(), from)
	if err != nil {
		writeEngineError(w, r, h.logger, "withdraw", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":   from,
		"withdrawn": amount,
	})
}
