package handler

import (
	"log/slog"
	"net/http"

	"github.com/quantfeed/arbscope/internal/domain"
	"github.com/quantfeed/arbscope/internal/service"
)

// QuoteHandler serves the cached quote view.
type QuoteHandler struct {
	quotes *service.QuoteService
	logger *slog.Logger
}

// NewQuoteHandler creates a QuoteHandler.
func NewQuoteHandler(quotes *service.QuoteService, logger *slog.Logger) *QuoteHandler {
	return &QuoteHandler{quotes: quotes, logger: logger}
}

// ListSymbols returns every symbol with cached quotes.
// GET /api/quotes
func (h *QuoteHandler) ListSymbols(w http.ResponseWriter, r *http.Request) {
	symbols := h.quotes.Symbols()
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		out = append(out, s.String())
	}
	writeJSON(w, http.StatusOK, map[string]any{"symbols": out})
}

// GetQuotes returns every venue's cached quote for one symbol with freshness
// and eligibility flags. Stale quotes stay visible here even though the
// detector ignores them.
// GET /api/quotes/{symbol} where symbol uses a dash, e.g. BTC-USDT
func (h *QuoteHandler) GetQuotes(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("symbol")
	sym, err := parseSymbolParam(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid symbol: "+raw)
		return
	}

	statuses := h.quotes.Quotes(sym)
	if len(statuses) == 0 {
		writeError(w, http.StatusNotFound, "no quotes for "+sym.String())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": sym.String(),
		"quotes": statuses,
	})
}

// parseSymbolParam accepts BTC-USDT or BTC/USDT path forms.
func parseSymbolParam(raw string) (domain.Symbol, error) {
	if sym, err := domain.ParseSymbol(raw); err == nil {
		return sym, nil
	}
	return domain.ParseSymbol(dashToSlash(raw))
}

func dashToSlash(s string) string {
	out := []byte(s)
	for i := range out {
		if out[i] == '-' {
			out[i] = '/'
		}
	}
	return string(out)
}
