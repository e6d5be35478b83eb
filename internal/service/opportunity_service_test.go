package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/arbscope/internal/domain"
	"github.com/quantfeed/arbscope/internal/engine"
	"github.com/quantfeed/arbscope/internal/feemodel"
	"github.com/quantfeed/arbscope/internal/quotecache"
)

type fakeOpportunityStore struct {
	mu       sync.Mutex
	inserted []domain.Opportunity
}

func (s *fakeOpportunityStore) Insert(_ context.Context, opp domain.Opportunity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, opp)
	return nil
}

func (s *fakeOpportunityStore) ListRecent(context.Context, int) ([]domain.Opportunity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]domain.Opportunity(nil), s.inserted...)
	return out, nil
}

func (s *fakeOpportunityStore) ListBefore(context.Context, time.Time) ([]domain.Opportunity, error) {
	return nil, nil
}

func (s *fakeOpportunityStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func arbFees() *feemodel.Model {
	return feemodel.New(
		map[string]feemodel.VenueFees{
			"alpha": {Taker: d("0.001")},
			"beta":  {Taker: d("0.001")},
		},
		[]feemodel.TransferEntry{
			{Venue: "alpha", Asset: "BTC", Network: "BEP20",
				Withdraw: domain.TransferFee{Fixed: d("0.01")}},
			{Venue: "beta", Asset: "BTC", Network: "BEP20"},
		},
	)
}

func crossedCache(t *testing.T) *quotecache.Cache {
	t.Helper()
	cache := quotecache.New(time.Minute, quotecache.WithClock(func() time.Time { return recv.Add(time.Second) }))
	sym := domain.Symbol{Base: "BTC", Quote: "USDT"}
	seed := func(venue, bid, ask string) {
		q := domain.Quote{
			Venue:  venue,
			Symbol: sym,
			Bids:   []domain.PriceLevel{{Price: d(bid), Size: d("10")}},
			Asks:   []domain.PriceLevel{{Price: d(ask), Size: d("10")}},
			Timestamp:  recv,
			ReceivedAt: recv,
		}
		if err := cache.Upsert(q); err != nil {
			t.Fatal(err)
		}
	}
	seed("alpha", "99", "100")
	seed("beta", "103", "104")
	return cache
}

func newOpportunityService(t *testing.T, store domain.OpportunityStore, bus domain.SignalBus) *OpportunityService {
	t.Helper()
	cache := crossedCache(t)
	det := engine.NewDetector(cache, engine.NewCalculator(arbFees(), d("10")), discard())
	rank := engine.NewRanker(decimal.Zero, time.Minute)
	return NewOpportunityService(det, rank, time.Second, store, bus, nil, discard())
}

func TestScanOncePersistsAndPublishes(t *testing.T) {
	store := &fakeOpportunityStore{}
	bus := newFakeBus()
	svc := newOpportunityService(t, store, bus)

	svc.ScanOnce(context.Background(), recv.Add(time.Second))

	current := svc.Current(nil)
	if len(current) != 1 {
		t.Fatalf("current = %d, want 1", len(current))
	}
	if current[0].BuyVenue != "alpha" || current[0].SellVenue != "beta" {
		t.Errorf("direction = %s -> %s", current[0].BuyVenue, current[0].SellVenue)
	}

	store.mu.Lock()
	inserted := len(store.inserted)
	store.mu.Unlock()
	if inserted != 1 {
		t.Errorf("inserted = %d, want 1", inserted)
	}
	if bus.published("opportunities") != 1 {
		t.Errorf("published = %d, want 1", bus.published("opportunities"))
	}
	msgs, err := svc.Replay(context.Background(), "0", 10)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("stream messages = %d, want 1", len(msgs))
	}
}

func TestCurrentFiltersBySymbol(t *testing.T) {
	fees := feemodel.New(
		map[string]feemodel.VenueFees{
			"alpha": {Taker: d("0.001")},
			"beta":  {Taker: d("0.001")},
		},
		[]feemodel.TransferEntry{
			{Venue: "alpha", Asset: "BTC", Network: "BEP20",
				Withdraw: domain.TransferFee{Fixed: d("0.01")}},
			{Venue: "beta", Asset: "BTC", Network: "BEP20"},
			{Venue: "alpha", Asset: "ETH", Network: "BEP20",
				Withdraw: domain.TransferFee{Fixed: d("0.01")}},
			{Venue: "beta", Asset: "ETH", Network: "BEP20"},
		},
	)

	cache := quotecache.New(time.Minute, quotecache.WithClock(func() time.Time { return recv.Add(time.Second) }))
	seed := func(venue string, sym domain.Symbol, bid, ask string) {
		q := domain.Quote{
			Venue:      venue,
			Symbol:     sym,
			Bids:       []domain.PriceLevel{{Price: d(bid), Size: d("10")}},
			Asks:       []domain.PriceLevel{{Price: d(ask), Size: d("10")}},
			Timestamp:  recv,
			ReceivedAt: recv,
		}
		if err := cache.Upsert(q); err != nil {
			t.Fatal(err)
		}
	}
	btc := domain.Symbol{Base: "BTC", Quote: "USDT"}
	eth := domain.Symbol{Base: "ETH", Quote: "USDT"}
	seed("alpha", btc, "99", "100")
	seed("beta", btc, "103", "104")
	seed("alpha", eth, "9.9", "10")
	seed("beta", eth, "10.3", "10.4")

	det := engine.NewDetector(cache, engine.NewCalculator(fees, d("10")), discard())
	svc := NewOpportunityService(det, engine.NewRanker(decimal.Zero, time.Minute), time.Second, nil, nil, nil, discard())

	svc.ScanOnce(context.Background(), recv.Add(time.Second))

	if got := len(svc.Current(nil)); got != 2 {
		t.Fatalf("unfiltered current = %d, want 2", got)
	}
	btcOnly := svc.Current(&btc)
	if len(btcOnly) != 1 {
		t.Fatalf("filtered current = %d, want 1", len(btcOnly))
	}
	if btcOnly[0].Symbol != btc {
		t.Errorf("filtered symbol = %s, want %s", btcOnly[0].Symbol, btc)
	}
	missing := domain.Symbol{Base: "SOL", Quote: "USDT"}
	if got := len(svc.Current(&missing)); got != 0 {
		t.Errorf("unknown symbol current = %d, want 0", got)
	}
}

func TestScanOnceSuppressesRepeatEmission(t *testing.T) {
	store := &fakeOpportunityStore{}
	bus := newFakeBus()
	svc := newOpportunityService(t, store, bus)

	svc.ScanOnce(context.Background(), recv.Add(time.Second))
	svc.ScanOnce(context.Background(), recv.Add(2*time.Second))

	// The direction persists across scans: still current, but emitted once.
	if len(svc.Current(nil)) != 1 {
		t.Fatalf("current = %d, want 1", len(svc.Current(nil)))
	}
	store.mu.Lock()
	inserted := len(store.inserted)
	store.mu.Unlock()
	if inserted != 1 {
		t.Errorf("inserted = %d across two scans within dedup window, want 1", inserted)
	}
}
