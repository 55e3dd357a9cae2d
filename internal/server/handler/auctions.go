package handler

import (
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// AuctionHandler serves auction endpoints.
type AuctionHandler struct {
	market Market
	logger *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(market Market, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{market: market, logger: logger}
}

type startAuctionRequest struct {
	AssetID         domain.AssetID `json:"asset_id"`
	StartingBid     domain.Amount  `json:"starting_bid"`
	DurationSeconds int64          `json:"duration_seconds"`
}

type placeBidRequest struct {
	Amount domain.Amount `json:"amount"`
}

// GetAuction returns the auction view; the zero view when none is running.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.market.GetAuction(id))
}

// StartAuction opens an auction for the caller's card.
// POST /api/auctions
func (h *AuctionHandler) StartAuction(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req startAuctionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DurationSeconds < 0 || req.DurationSeconds > math.MaxInt64/int64(time.Second) {
		writeError(w, http.StatusBadRequest, "duration_seconds out of range")
		return
	}
	view, err := h.market.StartAuction(r.Context(), from, req.AssetID, req.StartingBid, time.Duration(req.DurationSeconds)*time.Second)
	if err != nil {
		writeEngineError(w, r, h.logger, "start auction", err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// PlaceBid bids on a running auction.
// POST /api/auctions/{id}/bids
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := assetID(w, r)
	if !ok {
		return
	}
	var req placeBidRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.market.PlaceBid(r.Context(), from, id, req.Amount)
	if err != nil {
		writeEngineError(w, r, h.logger, "place bid", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// FinalizeAuction settles an ended auction.
// POST /api/auctions/{id}/finalize
func (h *AuctionHandler) FinalizeAuction(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := assetID(w, r)
	if !ok {
		return
	}
	st, err := h.market.FinalizeAuction(r.Context(), from, id)
	if err != nil {
		writeEngineError(w, r, h.logger, "finalize auction", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
