// Package normalizer converts venue-shaped orderbook snapshots into canonical
// quotes: one symbol naming scheme, decimal numbers, sorted depth. A snapshot
// that fails any check is rejected whole; the caller's cache never sees a
// partially converted quote.
package normalizer

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/arbscope/internal/domain"
)

// Normalizer translates raw feed snapshots for a set of configured venues.
type Normalizer struct {
	// symbolMaps maps venue -> venue-local symbol -> canonical symbol.
	// Venues without an explicit map fall back to canonical parsing of the
	// raw name ("BTC/USDT", "BTC-USDT", "BTCUSDT" with a known quote).
	symbolMaps map[string]map[string]domain.Symbol
	maxDepth   int
}

// New creates a Normalizer. symbolMaps may be nil when every venue already
// reports canonical names. maxDepth truncates depth beyond the given number
// of levels per side; zero keeps everything.
func New(symbolMaps map[string]map[string]domain.Symbol, maxDepth int) *Normalizer {
	return &Normalizer{symbolMaps: symbolMaps, maxDepth: maxDepth}
}

// knownQuotes are tried longest-first when splitting concatenated pair names.
var knownQuotes = []string{"USDT", "USDC", "BUSD", "TUSD", "USD", "EUR", "BTC", "ETH"}

// Normalize converts one raw snapshot into a canonical Quote. receivedAt is
// the local arrival time stamped by the feed layer.
func (n *Normalizer) Normalize(raw domain.RawSnapshot, receivedAt time.Time) (domain.Quote, error) {
	sym, err := n.resolveSymbol(raw.Venue, raw.Symbol)
	if err != nil {
		return domain.Quote{}, err
	}

	bids, err := parseLevels(raw.Bids)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("normalizer: %s %s bids: %w", raw.Venue, raw.Symbol, err)
	}
	asks, err := parseLevels(raw.Asks)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("normalizer: %s %s asks: %w", raw.Venue, raw.Symbol, err)
	}
	if len(bids) == 0 || len(asks) == 0 {
		return domain.Quote{}, fmt.Errorf("normalizer: %s %s: empty book side: %w", raw.Venue, raw.Symbol, domain.ErrInvalidQuote)
	}

	// Bids descending, asks ascending.
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	sort.Slice(asks, func(i, j int) bool { return asks[i].Price.LessThan(asks[j].Price) })

	if bids[0].Price.GreaterThanOrEqual(asks[0].Price) {
		return domain.Quote{}, fmt.Errorf("normalizer: %s %s: crossed book bid=%s ask=%s: %w",
			raw.Venue, raw.Symbol, bids[0].Price, asks[0].Price, domain.ErrInvalidQuote)
	}

	if n.maxDepth > 0 {
		if len(bids) > n.maxDepth {
			bids = bids[:n.maxDepth]
		}
		if len(asks) > n.maxDepth {
			asks = asks[:n.maxDepth]
		}
	}

	ts := raw.Timestamp
	if ts.IsZero() {
		ts = receivedAt
	}
	return domain.Quote{
		Venue:      raw.Venue,
		Symbol:     sym,
		Bids:       bids,
		Asks:       asks,
		Timestamp:  ts,
		ReceivedAt: receivedAt,
	}, nil
}

func (n *Normalizer) resolveSymbol(venue, raw string) (domain.Symbol, error) {
	if m, ok := n.symbolMaps[venue]; ok {
		if sym, ok := m[raw]; ok {
			return sym, nil
		}
		// An explicit map makes unlisted symbols an error rather than a
		// guess; venue-local names like "XBT" must be mapped deliberately.
		return domain.Symbol{}, fmt.Errorf("normalizer: %s: symbol %q not in venue map: %w", venue, raw, domain.ErrUnknownSymbol)
	}
	sym, err := parseCanonical(raw)
	if err != nil {
		return domain.Symbol{}, fmt.Errorf("normalizer: %s: %w", venue, err)
	}
	return sym, nil
}

func parseCanonical(raw string) (domain.Symbol, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, sep := range []string{"/", "-", "_"} {
		if base, quote, ok := strings.Cut(s, sep); ok {
			if base == "" || quote == "" {
				break
			}
			return domain.Symbol{Base: base, Quote: quote}, nil
		}
	}
	for _, q := range knownQuotes {
		if base, ok := strings.CutSuffix(s, q); ok && base != "" {
			return domain.Symbol{Base: base, Quote: q}, nil
		}
	}
	return domain.Symbol{}, fmt.Errorf("cannot parse symbol %q: %w", raw, domain.ErrUnknownSymbol)
}

func parseLevels(raw []domain.RawLevel) ([]domain.PriceLevel, error) {
	out := make([]domain.PriceLevel, 0, len(raw))
	for _, lv := range raw {
		price, err := decimal.NewFromString(lv.Price)
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", lv.Price, domain.ErrInvalidQuote)
		}
		size, err := decimal.NewFromString(lv.Size)
		if err != nil {
			return nil, fmt.Errorf("size %q: %w", lv.Size, domain.ErrInvalidQuote)
		}
		if price.Sign() <= 0 || size.Sign() < 0 {
			return nil, fmt.Errorf("level %s x %s out of range: %w", price, size, domain.ErrInvalidQuote)
		}
		if size.Sign() == 0 {
			continue // zero-size levels are deletions on some venues
		}
		out = append(out, domain.PriceLevel{Price: price, Size: size})
	}
	return out, nil
}
