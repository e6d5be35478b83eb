package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/arbscope/internal/domain"
)

// Ranker orders feasible opportunities and decides which ones warrant a new
// alert. The same (symbol, buy venue, sell venue) direction persisting across
// consecutive scans is one opportunity, not a stream of them: figures are
// refreshed every scan but an alert fires at most once per dedup window.
type Ranker struct {
	minRate decimal.Decimal
	ttl     time.Duration

	mu   sync.Mutex
	seen map[string]time.Time // direction key -> last alert time
}

// NewRanker creates a Ranker. minRate drops feasible opportunities whose net
// profit rate is below the threshold; ttl is the re-alert suppression window.
func NewRanker(minRate decimal.Decimal, ttl time.Duration) *Ranker {
	return &Ranker{minRate: minRate, ttl: ttl, seen: make(map[string]time.Time)}
}

// Rank filters a scan's output down to feasible opportunities at or above the
// minimum rate, sorted by net profit rate descending with gross spread as the
// tie-break. alerts is the subset whose direction has not alerted within the
// dedup window; their suppression clocks are reset as a side effect.
func (r *Ranker) Rank(ops []domain.Opportunity, at time.Time) (ranked, alerts []domain.Opportunity) {
	for _, op := range ops {
		if !op.Feasible() || op.NetProfitRate.LessThan(r.minRate) {
			continue
		}
		ranked = append(ranked, op)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if !a.NetProfitRate.Equal(b.NetProfitRate) {
			return a.NetProfitRate.GreaterThan(b.NetProfitRate)
		}
		if !a.GrossSpread.Equal(b.GrossSpread) {
			return a.GrossSpread.GreaterThan(b.GrossSpread)
		}
		return a.Size.GreaterThan(b.Size)
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, op := range ranked {
		last, ok := r.seen[op.Key()]
		if ok && at.Sub(last) < r.ttl {
			continue
		}
		r.seen[op.Key()] = at
		alerts = append(alerts, op)
	}
	r.sweep(at)
	return ranked, alerts
}

// sweep drops expired suppression entries so a direction that vanished and
// returned later alerts again. Caller holds r.mu.
func (r *Ranker) sweep(at time.Time) {
	for k, last := range r.seen {
		if at.Sub(last) >= r.ttl {
			delete(r.seen, k)
		}
	}
}
