package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/cardmarket/internal/domain"
	"github.com/alanyoungcy/cardmarket/internal/server/middleware"
)

// writeJSON marshals v and writes it with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends {"error": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errorStatus maps engine errors onto HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrAuctionDurationZero),
		errors.Is(err, domain.ErrDurationTooLong):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientPayment),
		errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, domain.ErrNotOwner),
		errors.Is(err, domain.ErrNotApproved),
		errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrNotHolder):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInactiveListing):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyListed),
		errors.Is(err, domain.ErrNotAnAuction),
		errors.Is(err, domain.ErrAuctionHasBids),
		errors.Is(err, domain.ErrAuctionHasEnded),
		errors.Is(err, domain.ErrLowBid),
		errors.Is(err, domain.ErrNothingToWithdraw):
		return http.StatusConflict
	case errors.Is(err, domain.ErrPaused):
		return http.StatusLocked
	case errors.Is(err, domain.ErrAuctionNotEnded):
		return http.StatusTooEarly
	case errors.Is(err, domain.ErrBadSignature):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, domain.ErrLockHeld):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeEngineError maps err to a status. Server errors are logged and
// their detail withheld from the client.
func writeEngineError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		logger.ErrorContext(r.Context(), "handler: "+op+" failed", slog.String("error", err.Error()))
		writeError(w, status, op+" failed")
		return
	}
	writeError(w, status, err.Error())
}

// caller returns the authenticated caller or writes 401.
func caller(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	addr, ok := middleware.CallerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "signed request required")
	}
	return addr, ok
}

// assetID parses the {id} path value.
func assetID(w http.ResponseWriter, r *http.Request) (domain.AssetID, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid asset id %q", r.PathValue("id")))
		return 0, false
	}
	return domain.AssetID(id), true
}

// decodeBody decodes a JSON body into v, rejecting unknown fields. An empty
// body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// parseListOpts reads limit (default 50, max 500) and offset.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	limit = min(limit, 500)

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}
	return domain.ListOpts{Limit: limit, Offset: offset}
}
