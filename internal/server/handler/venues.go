package handler

import (
	"log/slog"
	"net/http"

	"github.com/quantfeed/arbscope/internal/service"
)

// VenueHandler serves venue connectivity state.
type VenueHandler struct {
	quotes *service.QuoteService
	logger *slog.Logger
}

// NewVenueHandler creates a VenueHandler.
func NewVenueHandler(quotes *service.QuoteService, logger *slog.Logger) *VenueHandler {
	return &VenueHandler{quotes: quotes, logger: logger}
}

// ListVenues returns last known connectivity per venue.
// GET /api/venues
func (h *VenueHandler) ListVenues(w http.ResponseWriter, r *http.Request) {
	statuses := h.quotes.VenueStatuses()
	out := make(map[string]string, len(statuses))
	for venue, st := range statuses {
		out[venue] = string(st)
	}
	writeJSON(w, http.StatusOK, map[string]any{"venues": out})
}
