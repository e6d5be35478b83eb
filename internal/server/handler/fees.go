package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quantfeed/arbscope/internal/domain"
	"github.com/quantfeed/arbscope/internal/feemodel"
)

// FeeHandler exposes the loaded fee schedule so operators can verify what
// the calculator is working with.
type FeeHandler struct {
	fees   *feemodel.Model
	logger *slog.Logger
}

// NewFeeHandler creates a FeeHandler.
func NewFeeHandler(fees *feemodel.Model, logger *slog.Logger) *FeeHandler {
	return &FeeHandler{fees: fees, logger: logger}
}

// ListVenueFees returns maker/taker fees per configured venue.
// GET /api/fees
func (h *FeeHandler) ListVenueFees(w http.ResponseWriter, r *http.Request) {
	type venueFees struct {
		Venue string `json:"venue"`
		Maker string `json:"maker"`
		Taker string `json:"taker"`
	}
	var out []venueFees
	for _, venue := range h.fees.Venues() {
		maker, err := h.fees.TradingFee(venue, domain.FeeRoleMaker)
		if err != nil {
			continue
		}
		taker, err := h.fees.TradingFee(venue, domain.FeeRoleTaker)
		if err != nil {
			continue
		}
		out = append(out, venueFees{Venue: venue, Maker: maker.String(), Taker: taker.String()})
	}
	writeJSON(w, http.StatusOK, map[string]any{"fees": out})
}

// GetRoute returns the cheapest transfer route between two venues for an
// asset, or a 404 explaining which fee data is missing.
// GET /api/fees/route?from=alpha&to=beta&asset=BTC
func (h *FeeHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := strings.TrimSpace(q.Get("from"))
	to := strings.TrimSpace(q.Get("to"))
	asset := strings.TrimSpace(q.Get("asset"))
	if from == "" || to == "" || asset == "" {
		writeError(w, http.StatusBadRequest, "from, to and asset are required")
		return
	}

	route, err := h.fees.Route(from, to, asset)
	if err != nil {
		if errors.Is(err, domain.ErrMissingFeeData) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		h.logger.Error("route lookup failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "route lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, route)
}
