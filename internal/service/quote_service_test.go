package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/quantfeed/arbscope/internal/domain"
	"github.com/quantfeed/arbscope/internal/normalizer"
	"github.com/quantfeed/arbscope/internal/quotecache"
)

type fakeBus struct {
	mu       sync.Mutex
	channels map[string][][]byte
	streams  map[string][][]byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		channels: make(map[string][][]byte),
		streams:  make(map[string][][]byte),
	}
}

func (b *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels[channel] = append(b.channels[channel], payload)
	return nil
}

func (b *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *fakeBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *fakeBus) StreamRead(_ context.Context, stream, _ string, _ int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for i, p := range b.streams[stream] {
		out = append(out, domain.StreamMessage{ID: string(rune('0' + i)), Payload: p})
	}
	return out, nil
}

func (b *fakeBus) published(channel string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels[channel])
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var recv = time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)

func rawBook(venue, symbol, bid, ask string) domain.RawSnapshot {
	return domain.RawSnapshot{
		Venue:     venue,
		Symbol:    symbol,
		Bids:      []domain.RawLevel{{Price: bid, Size: "10"}},
		Asks:      []domain.RawLevel{{Price: ask, Size: "10"}},
		Timestamp: recv,
	}
}

func newQuoteService(bus domain.SignalBus) (*QuoteService, *quotecache.Cache) {
	cache := quotecache.New(time.Minute, quotecache.WithClock(func() time.Time { return recv.Add(time.Second) }))
	svc := NewQuoteService(normalizer.New(nil, 0), cache, bus, nil, discard())
	return svc, cache
}

func TestOnSnapshotCachesAndPublishes(t *testing.T) {
	bus := newFakeBus()
	svc, cache := newQuoteService(bus)

	svc.OnSnapshot(context.Background(), rawBook("alpha", "BTC/USDT", "100", "101"), recv)

	sym := domain.Symbol{Base: "BTC", Quote: "USDT"}
	if got := len(cache.Snapshot(sym)); got != 1 {
		t.Fatalf("cached quotes = %d, want 1", got)
	}
	if bus.published("quotes") != 1 {
		t.Errorf("published quote events = %d, want 1", bus.published("quotes"))
	}
}

func TestOnSnapshotInvalidLeavesCacheUntouched(t *testing.T) {
	bus := newFakeBus()
	svc, cache := newQuoteService(bus)
	sym := domain.Symbol{Base: "BTC", Quote: "USDT"}

	svc.OnSnapshot(context.Background(), rawBook("alpha", "BTC/USDT", "100", "101"), recv)

	// A crossed book arriving later must not replace the good quote or emit.
	svc.OnSnapshot(context.Background(), rawBook("alpha", "BTC/USDT", "105", "104"), recv.Add(time.Second))

	snap := cache.Snapshot(sym)
	if len(snap) != 1 {
		t.Fatalf("cached quotes = %d, want 1", len(snap))
	}
	bid, _ := snap[0].BestBid()
	if bid.Price.String() != "100" {
		t.Errorf("cache replaced by invalid snapshot: bid = %s", bid.Price)
	}
	if bus.published("quotes") != 1 {
		t.Errorf("invalid snapshot published an event")
	}
}

func TestDisconnectLifecyclePublishesStatus(t *testing.T) {
	bus := newFakeBus()
	svc, cache := newQuoteService(bus)

	svc.OnSnapshot(context.Background(), rawBook("alpha", "BTC/USDT", "100", "101"), recv)
	svc.OnDisconnected("alpha")

	if st := cache.VenueStatus("alpha"); st != domain.VenueDisconnected {
		t.Errorf("status = %s, want disconnected", st)
	}
	if got := len(cache.Snapshot(domain.Symbol{Base: "BTC", Quote: "USDT"})); got != 0 {
		t.Errorf("disconnected venue still in snapshot")
	}
	if bus.published("status") != 1 {
		t.Errorf("status events = %d, want 1", bus.published("status"))
	}

	svc.OnConnected("alpha")
	if st := cache.VenueStatus("alpha"); st != domain.VenueConnected {
		t.Errorf("status after reconnect = %s", st)
	}
}
