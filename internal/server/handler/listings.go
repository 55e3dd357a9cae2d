package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// ListingHandler serves fixed-price listing endpoints.
type ListingHandler struct {
	market Market
	logger *slog.Logger
}

// NewListingHandler creates a ListingHandler.
func NewListingHandler(market Market, logger *slog.Logger) *ListingHandler {
	return &ListingHandler{market: market, logger: logger}
}

type listCardRequest struct {
	AssetID domain.AssetID `json:"asset_id"`
	Price   domain.Amount  `json:"price"`
}

type buyCardRequest struct {
	Paid domain.Amount `json:"paid"`
}

// ListActive returns every active listing ordered by asset id.
// GET /api/listings
func (h *ListingHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	listings := h.market.ActiveListings()
	if listings == nil {
		listings = []domain.ListingView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"listings": listings})
}

// GetListing returns the listing view for one asset. Unlisted assets return
// the inactive zero view rather than 404.
// GET /api/listings/{id}
func (h *ListingHandler) GetListing(w http.ResponseWriter, r *http.Request) {
	id, ok := assetID(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.market.GetListing(id))
}

// ListCard lists the caller's card at a fixed price.
// POST /api/listings
func (h *ListingHandler) ListCard(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	var req listCardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.market.ListCard(r.Context(), from, req.AssetID, req.Price)
	if err != nil {
		writeEngineError(w, r, h.logger, "list card", err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// CancelListing withdraws a listing and returns the card to its seller.
// DELETE /api/listings/{id}
func (h *ListingHandler) CancelListing(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := assetID(w, r)
	if !ok {
		return
	}
	if err := h.market.CancelListing(r.Context(), from, id); err != nil {
		writeEngineError(w, r, h.logger, "cancel listing", err)
		return
	}
	writeJSON(w, http.StatusOK, h.market.GetListing(id))
}

// BuyCard buys a fixed-price listing. Overpayment is refunded.
// POST /api/listings/{id}/buy
func (h *ListingHandler) BuyCard(w http.ResponseWriter, r *http.Request) {
	from, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := assetID(w, r)
	if !ok {
		return
	}
	var req buyCardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	st, err := h.market.BuyCard(r.Context(), from, id, req.Paid)
	if err != nil {
		writeEngineError(w, r, h.logger, "buy card", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}
