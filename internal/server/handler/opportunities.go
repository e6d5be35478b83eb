package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantfeed/arbscope/internal/domain"
	"github.com/quantfeed/arbscope/internal/service"
)

// OpportunityHandler serves current and historical opportunities.
type OpportunityHandler struct {
	opps   *service.OpportunityService
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(opps *service.OpportunityService, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{opps: opps, logger: logger}
}

// ListCurrent returns the ranked feasible opportunities from the latest
// scan, optionally narrowed to one symbol.
// GET /api/opportunities?symbol=BTC-USDT
func (h *OpportunityHandler) ListCurrent(w http.ResponseWriter, r *http.Request) {
	var symbol *domain.Symbol
	if raw := r.URL.Query().Get("symbol"); raw != "" {
		sym, err := parseSymbolParam(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid symbol: "+raw)
			return
		}
		symbol = &sym
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opportunities": h.opps.Current(symbol),
	})
}

// ListRecent returns persisted opportunities, newest first.
// GET /api/opportunities/recent?limit=N
func (h *OpportunityHandler) ListRecent(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)
	opps, err := h.opps.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("list recent opportunities failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list opportunities")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}

// Replay reads the durable opportunity stream from the given ID so clients
// can resume after a restart.
// GET /api/opportunities/stream?after=ID&limit=N
func (h *OpportunityHandler) Replay(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	limit := queryLimit(r, 100, 1000)

	msgs, err := h.opps.Replay(r.Context(), after, limit)
	if err != nil {
		h.logger.Error("stream replay failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to read stream")
		return
	}

	type entry struct {
		ID      string          `json:"id"`
		Payload json.RawMessage `json:"payload"`
	}
	out := make([]entry, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, entry{ID: m.ID, Payload: m.Payload})
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": out})
}

// TriggerScan runs one scan immediately. Debug aid; the loop keeps its own
// schedule regardless.
// POST /api/opportunities/scan
func (h *OpportunityHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	h.opps.ScanOnce(r.Context(), time.Now().UTC())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "scanned",
		"opportunities": h.opps.Current(nil),
	})
}
