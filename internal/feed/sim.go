package feed

import (
	"context"
	"log/slog"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/quantfeed/arbscope/internal/domain"
)

// SimFeed emits synthetic orderbook snapshots on a fixed interval: a random
// walk of the mid price per symbol with a constant fractional spread and a
// few depth levels per side. Useful for running the full pipeline without
// venue credentials and for load-testing downstream components.
type SimFeed struct {
	venue    string
	symbols  []string
	params   SimParams
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	rng  *rand.Rand
	mids map[string]float64
}

// SimParams tunes the synthetic walk.
type SimParams struct {
	StartPrice float64       // initial mid price, default 100
	Volatility float64       // max fractional step per tick, default 0.002
	Spread     float64       // fractional bid/ask spread, default 0.001
	Levels     int           // depth levels per side, default 5
	Interval   time.Duration // snapshot interval, default 500ms
	Seed       int64         // rng seed; 0 seeds from the clock
}

func (p *SimParams) defaults() {
	if p.StartPrice <= 0 {
		p.StartPrice = 100
	}
	if p.Volatility <= 0 {
		p.Volatility = 0.002
	}
	if p.Spread <= 0 {
		p.Spread = 0.001
	}
	if p.Levels <= 0 {
		p.Levels = 5
	}
	if p.Interval <= 0 {
		p.Interval = 500 * time.Millisecond
	}
	if p.Seed == 0 {
		p.Seed = time.Now().UnixNano()
	}
}

// NewSimFeed creates a simulated feed for one venue. Symbols should be
// canonical ("BTC/USDT") so no symbol map is needed downstream.
func NewSimFeed(venue string, symbols []string, params SimParams, logger *slog.Logger) *SimFeed {
	params.defaults()
	mids := make(map[string]float64, len(symbols))
	rng := rand.New(rand.NewSource(params.Seed))
	for _, s := range symbols {
		// Venues start near but not at the same price so spreads appear.
		mids[s] = params.StartPrice * (1 + (rng.Float64()-0.5)*0.01)
	}
	return &SimFeed{
		venue:    venue,
		symbols:  symbols,
		params:   params,
		interval: params.Interval,
		logger: logger.With(
			slog.String("component", "sim_feed"),
			slog.String("venue", venue)),
		rng:  rng,
		mids: mids,
	}
}

func (f *SimFeed) Venue() string { return f.venue }

// Run emits one snapshot per symbol per interval until ctx ends.
func (f *SimFeed) Run(ctx context.Context, h Handler) error {
	f.logger.Info("sim feed started", slog.Int("symbols", len(f.symbols)))
	h.OnConnected(f.venue)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			now := time.Now().UTC()
			for _, sym := range f.symbols {
				h.OnSnapshot(ctx, f.step(sym, now), now)
			}
		}
	}
}

// step advances the walk for one symbol and builds its snapshot.
func (f *SimFeed) step(symbol string, now time.Time) domain.RawSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	mid := f.mids[symbol]
	mid *= 1 + (f.rng.Float64()*2-1)*f.params.Volatility
	f.mids[symbol] = mid

	half := mid * f.params.Spread / 2
	bid := mid - half
	ask := mid + half

	var bids, asks []domain.RawLevel
	for i := 0; i < f.params.Levels; i++ {
		step := float64(i) * half
		size := 1 + f.rng.Float64()*9
		bids = append(bids, simLevel(bid-step, size))
		asks = append(asks, simLevel(ask+step, size))
	}
	return domain.RawSnapshot{
		Venue:     f.venue,
		Symbol:    symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: now,
	}
}

func simLevel(price, size float64) domain.RawLevel {
	return domain.RawLevel{
		Price: strconv.FormatFloat(price, 'f', 8, 64),
		Size:  strconv.FormatFloat(size, 'f', 4, 64),
	}
}
