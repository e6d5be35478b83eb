package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/quantfeed/arbscope/internal/domain"
)

type captureHandler struct {
	mu           sync.Mutex
	snaps        []domain.RawSnapshot
	connected    []string
	disconnected []string
}

func (h *captureHandler) OnSnapshot(_ context.Context, snap domain.RawSnapshot, _ time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snaps = append(h.snaps, snap)
}

func (h *captureHandler) OnConnected(venue string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connected = append(h.connected, venue)
}

func (h *captureHandler) OnDisconnected(venue string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected = append(h.disconnected, venue)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSimFeedEmitsSaneSnapshots(t *testing.T) {
	h := &captureHandler{}
	f := NewSimFeed("simulated", []string{"BTC/USDT", "ETH/USDT"},
		SimParams{Seed: 42, Interval: time.Millisecond}, discard())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := f.Run(ctx, h); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run returned %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.connected) != 1 || h.connected[0] != "simulated" {
		t.Fatalf("connected = %v", h.connected)
	}
	if len(h.snaps) < 4 {
		t.Fatalf("snapshots = %d, want several", len(h.snaps))
	}
	for _, snap := range h.snaps {
		if snap.Venue != "simulated" {
			t.Fatalf("venue = %q", snap.Venue)
		}
		if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
			t.Fatalf("empty book side in %+v", snap)
		}
		bid, err := strconv.ParseFloat(snap.Bids[0].Price, 64)
		if err != nil {
			t.Fatalf("bid price %q: %v", snap.Bids[0].Price, err)
		}
		ask, err := strconv.ParseFloat(snap.Asks[0].Price, 64)
		if err != nil {
			t.Fatalf("ask price %q: %v", snap.Asks[0].Price, err)
		}
		if bid >= ask {
			t.Fatalf("crossed sim book: bid %f >= ask %f", bid, ask)
		}
	}
}

func TestSimFeedDeterministicWithSeed(t *testing.T) {
	run := func() []domain.RawSnapshot {
		h := &captureHandler{}
		f := NewSimFeed("simulated", []string{"BTC/USDT"},
			SimParams{Seed: 7, Interval: time.Millisecond}, discard())
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_ = f.Run(ctx, h)
		h.mu.Lock()
		defer h.mu.Unlock()
		return append([]domain.RawSnapshot(nil), h.snaps...)
	}

	a, b := run(), run()
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		t.Fatal("no snapshots captured")
	}
	for i := 0; i < n; i++ {
		if a[i].Bids[0].Price != b[i].Bids[0].Price {
			t.Fatalf("snapshot %d differs across seeded runs: %s vs %s",
				i, a[i].Bids[0].Price, b[i].Bids[0].Price)
		}
	}
}

type failingFeed struct{ venue string }

func (f failingFeed) Venue() string { return f.venue }
func (f failingFeed) Run(context.Context, Handler) error {
	return errors.New("dial tcp: connection refused")
}

func TestManagerIsolatesFeedFailure(t *testing.T) {
	h := &captureHandler{}
	sim := NewSimFeed("healthy", []string{"BTC/USDT"},
		SimParams{Seed: 1, Interval: time.Millisecond}, discard())
	m := NewManager([]Feed{failingFeed{venue: "broken"}, sim}, discard())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := m.Run(ctx, h); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run: %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	found := false
	for _, v := range h.disconnected {
		if v == "broken" {
			found = true
		}
	}
	if !found {
		t.Error("broken feed not reported disconnected")
	}
	if len(h.snaps) == 0 {
		t.Error("healthy feed produced nothing while broken feed failed")
	}
}
