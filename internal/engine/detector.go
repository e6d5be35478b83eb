package engine

import (
	"log/slog"
	"sort"
	"time"

	"github.com/quantfeed/arbscope/internal/domain"
	"github.com/quantfeed/arbscope/internal/quotecache"
)

// Detector scans the quote cache for cross-venue price dislocations and
// hands candidates to the Calculator. A scan is a function of the cache
// contents and the clock passed in; repeated scans over unchanged quotes
// produce the same figures.
type Detector struct {
	cache *quotecache.Cache
	calc  *Calculator
	log   *slog.Logger
}

// NewDetector creates a Detector over the given cache and calculator.
func NewDetector(cache *quotecache.Cache, calc *Calculator, log *slog.Logger) *Detector {
	return &Detector{cache: cache, calc: calc, log: log.With("component", "detector")}
}

// Scan evaluates every symbol with at least two fresh eligible quotes, in
// both directions per venue pair. A venue pair is a candidate only when the
// sell side's best bid exceeds the buy side's best ask; same-venue spreads
// are never arbitrage. Results are ordered by symbol, then buy venue, then
// sell venue, so output is deterministic for a given cache state.
func (d *Detector) Scan(at time.Time) []domain.Opportunity {
	var out []domain.Opportunity
	for _, sym := range d.cache.Symbols() {
		quotes := d.cache.Snapshot(sym)
		if len(quotes) < 2 {
			continue
		}
		for _, buy := range quotes {
			for _, sell := range quotes {
				if buy.Venue == sell.Venue {
					continue
				}
				op, ok := d.evaluatePair(buy, sell, at)
				if ok {
					out = append(out, op)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Symbol != b.Symbol {
			return a.Symbol.String() < b.Symbol.String()
		}
		if a.BuyVenue != b.BuyVenue {
			return a.BuyVenue < b.BuyVenue
		}
		return a.SellVenue < b.SellVenue
	})
	return out
}

func (d *Detector) evaluatePair(buy, sell domain.Quote, at time.Time) (domain.Opportunity, bool) {
	ask, okAsk := buy.BestAsk()
	bid, okBid := sell.BestBid()
	if !okAsk || !okBid || !bid.Price.GreaterThan(ask.Price) {
		return domain.Opportunity{}, false
	}
	op, err := d.calc.Evaluate(buy, sell, at)
	if err != nil {
		d.log.Debug("pair not evaluable",
			"symbol", buy.Symbol.String(),
			"buy_venue", buy.Venue,
			"sell_venue", sell.Venue,
			"error", err)
		return domain.Opportunity{}, false
	}
	if op.Verdict == domain.VerdictInfeasible && op.Reason != "" {
		d.log.Debug("candidate infeasible",
			"symbol", op.Symbol.String(),
			"buy_venue", op.BuyVenue,
			"sell_venue", op.SellVenue,
			"reason", op.Reason)
	}
	return op, true
}
