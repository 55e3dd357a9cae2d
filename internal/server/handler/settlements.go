package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/cardmarket/internal/domain"
)

// SettlementHandler serves settlement history.
type SettlementHandler struct {
	settlements domain.SettlementStore
	logger      *slog.Logger
}

// NewSettlementHandler creates a SettlementHandler.
func NewSettlementHandler(settlements domain.SettlementStore, logger *slog.Logger) *SettlementHandler {
	return &SettlementHandler{settlements: settlements, logger: logger}
}

// List returns settlements newest first.
// GET /api/settlements?limit=50&offset=0&since=RFC3339&until=RFC3339
func (h *SettlementHandler) List(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	q := r.URL.Query()
	for name, dst := range map[string]**time.Time{"since": &opts.Since, "until": &opts.Until} {
		v := q.Get(name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+name+" timestamp")
			return
		}
		*dst = &t
	}

	out, err := h.settlements.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list settlements failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list settlements")
		return
	}
	if out == nil {
		out = []domain.Settlement{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"settlements": out})
}
