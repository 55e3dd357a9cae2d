package handler

import (
	"net/http"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// StatusInfo is the static part of the status document.
type StatusInfo struct {
	Mode               string           `json:"mode"`
	EngineAddress      domain.Address   `json:"engine_address"`
	Operators          []domain.Address `json:"operators"`
	AutoSettle         bool             `json:"auto_settle"`
	MaxAuctionDuration string           `json:"max_auction_duration"`
	MinIncrementPct    int64            `json:"min_increment_pct"`
}

// StatusHandler serves the daemon configuration for dashboards.
type StatusHandler struct {
	market Market
	info   StatusInfo
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(market Market, info StatusInfo) *StatusHandler {
	if info.Operators == nil {
		info.Operators = []domain.Address{}
	}
	return &StatusHandler{market: market, info: info}
}

type statusResponse struct {
	StatusInfo
	Paused bool `json:"paused"`
}

// GetStatus responds with the running mode, market parameters and the
// pause flag.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{StatusInfo: h.info, Paused: h.market.Paused()})
}
