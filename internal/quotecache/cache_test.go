package quotecache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/arbscope/internal/domain"
)

var btcusdt = domain.Symbol{Base: "BTC", Quote: "USDT"}

func quoteAt(venue string, recv time.Time, bid, ask string) domain.Quote {
	return domain.Quote{
		Venue:  venue,
		Symbol: btcusdt,
		Bids:   []domain.PriceLevel{{Price: decimal.RequireFromString(bid), Size: decimal.NewFromInt(1)}},
		Asks:   []domain.PriceLevel{{Price: decimal.RequireFromString(ask), Size: decimal.NewFromInt(1)}},
		Timestamp:  recv,
		ReceivedAt: recv,
	}
}

func TestUpsertReplacesWholesale(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	now := base
	c := New(5*time.Second, WithClock(func() time.Time { return now }))

	if err := c.Upsert(quoteAt("alpha", base, "100", "101")); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := c.Upsert(quoteAt("alpha", base.Add(time.Second), "102", "103")); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	now = base.Add(2 * time.Second)
	snap := c.Snapshot(btcusdt)
	if len(snap) != 1 {
		t.Fatalf("snapshot size = %d, want 1", len(snap))
	}
	bid, _ := snap[0].BestBid()
	if bid.Price.String() != "102" {
		t.Errorf("bid = %s, want 102 (latest replaces earlier)", bid.Price)
	}
}

func TestUpsertRejectsOutOfOrder(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	c := New(5*time.Second, WithClock(func() time.Time { return base.Add(time.Second) }))

	if err := c.Upsert(quoteAt("alpha", base, "100", "101")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	err := c.Upsert(quoteAt("alpha", base.Add(-time.Second), "90", "91"))
	if !errors.Is(err, domain.ErrOutOfOrder) {
		t.Fatalf("err = %v, want ErrOutOfOrder", err)
	}

	snap := c.Snapshot(btcusdt)
	bid, _ := snap[0].BestBid()
	if bid.Price.String() != "100" {
		t.Errorf("stale update clobbered cache: bid = %s", bid.Price)
	}
}

func TestRejectedUpsertKeepsVenueDisconnected(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	c := New(5*time.Second, WithClock(func() time.Time { return base.Add(time.Second) }))

	if err := c.Upsert(quoteAt("alpha", base, "100", "101")); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	c.MarkDisconnected("alpha")

	err := c.Upsert(quoteAt("alpha", base.Add(-time.Second), "90", "91"))
	if !errors.Is(err, domain.ErrOutOfOrder) {
		t.Fatalf("err = %v, want ErrOutOfOrder", err)
	}
	if st := c.VenueStatus("alpha"); st != domain.VenueDisconnected {
		t.Fatalf("status = %s, want disconnected (rejected update must not reconnect)", st)
	}

	if err := c.Upsert(quoteAt("alpha", base.Add(time.Second), "100", "101")); err != nil {
		t.Fatalf("fresh upsert: %v", err)
	}
	if st := c.VenueStatus("alpha"); st != domain.VenueConnected {
		t.Errorf("status = %s, want connected after accepted update", st)
	}
}

func TestUpsertRejectsInvalid(t *testing.T) {
	c := New(5 * time.Second)
	err := c.Upsert(domain.Quote{Venue: "", Symbol: btcusdt})
	if !errors.Is(err, domain.ErrInvalidQuote) {
		t.Fatalf("err = %v, want ErrInvalidQuote", err)
	}
	if got := len(c.Symbols()); got != 0 {
		t.Errorf("invalid upsert created %d entries", got)
	}
}

func TestSnapshotExcludesStale(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	now := base
	c := New(2*time.Second, WithClock(func() time.Time { return now }))

	if err := c.Upsert(quoteAt("alpha", base, "100", "101")); err != nil {
		t.Fatal(err)
	}
	if err := c.Upsert(quoteAt("beta", base.Add(3*time.Second), "100", "101")); err != nil {
		t.Fatal(err)
	}

	now = base.Add(4 * time.Second)
	snap := c.Snapshot(btcusdt)
	if len(snap) != 1 || snap[0].Venue != "beta" {
		t.Fatalf("snapshot = %+v, want only beta", snap)
	}

	// All still reports the stale entry, flagged not fresh.
	all := c.All(btcusdt)
	if len(all) != 2 {
		t.Fatalf("all = %d entries, want 2", len(all))
	}
	for _, st := range all {
		wantFresh := st.Quote.Venue == "beta"
		if st.Fresh != wantFresh {
			t.Errorf("venue %s fresh = %v, want %v", st.Quote.Venue, st.Fresh, wantFresh)
		}
	}
}

func TestDisconnectedVenueExcludedUntilRefresh(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	c := New(time.Minute, WithClock(func() time.Time { return base.Add(time.Second) }))

	if err := c.Upsert(quoteAt("alpha", base, "100", "101")); err != nil {
		t.Fatal(err)
	}
	if err := c.Upsert(quoteAt("beta", base, "100", "102")); err != nil {
		t.Fatal(err)
	}

	c.MarkDisconnected("alpha")
	if st := c.VenueStatus("alpha"); st != domain.VenueDisconnected {
		t.Errorf("status = %s, want disconnected", st)
	}

	snap := c.Snapshot(btcusdt)
	if len(snap) != 1 || snap[0].Venue != "beta" {
		t.Fatalf("snapshot after disconnect = %+v, want only beta", snap)
	}

	// Reconnect alone does not resurrect the cached quote.
	c.MarkConnected("alpha")
	if got := len(c.Snapshot(btcusdt)); got != 1 {
		t.Fatalf("snapshot after reconnect without refresh = %d quotes, want 1", got)
	}

	// A fresh upsert does.
	if err := c.Upsert(quoteAt("alpha", base.Add(time.Second), "100", "101")); err != nil {
		t.Fatal(err)
	}
	if got := len(c.Snapshot(btcusdt)); got != 2 {
		t.Fatalf("snapshot after refresh = %d quotes, want 2", got)
	}
}

func TestVenuesIndependent(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	c := New(time.Minute, WithClock(func() time.Time { return base.Add(time.Second) }))

	if err := c.Upsert(quoteAt("alpha", base, "100", "101")); err != nil {
		t.Fatal(err)
	}
	// An out-of-order update on beta never disturbs alpha's entry.
	if err := c.Upsert(quoteAt("beta", base, "200", "201")); err != nil {
		t.Fatal(err)
	}
	if err := c.Upsert(quoteAt("beta", base.Add(-time.Second), "1", "2")); !errors.Is(err, domain.ErrOutOfOrder) {
		t.Fatalf("err = %v, want ErrOutOfOrder", err)
	}

	snap := c.Snapshot(btcusdt)
	if len(snap) != 2 {
		t.Fatalf("snapshot = %d quotes, want 2", len(snap))
	}
	bid, _ := snap[0].BestBid()
	if snap[0].Venue != "alpha" || bid.Price.String() != "100" {
		t.Errorf("alpha entry disturbed: %+v", snap[0])
	}
}

func TestConcurrentUpserts(t *testing.T) {
	base := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	c := New(time.Minute, WithClock(func() time.Time { return base.Add(time.Hour) }))

	const venues = 8
	const updates = 200
	var wg sync.WaitGroup
	for v := 0; v < venues; v++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			name := fmt.Sprintf("venue%d", v)
			for i := 0; i < updates; i++ {
				q := quoteAt(name, base.Add(time.Duration(i)*time.Millisecond), "100", "101")
				if err := c.Upsert(q); err != nil {
					t.Errorf("upsert %s: %v", name, err)
					return
				}
			}
		}(v)
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			default:
				c.Snapshot(btcusdt)
				c.All(btcusdt)
			}
		}
	}()
	wg.Wait()
	close(done)

	all := c.All(btcusdt)
	if len(all) != venues {
		t.Fatalf("entries = %d, want %d", len(all), venues)
	}
	for _, st := range all {
		if got := st.Quote.ReceivedAt; !got.Equal(base.Add((updates - 1) * time.Millisecond)) {
			t.Errorf("venue %s final quote at %v, want last update", st.Quote.Venue, got)
		}
	}
}
