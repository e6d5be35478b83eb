package engine

import (
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/quantfeed/arbscope/internal/domain"
	"github.com/quantfeed/arbscope/internal/quotecache"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedCache(t *testing.T, quotes ...domain.Quote) *quotecache.Cache {
	t.Helper()
	c := quotecache.New(time.Minute, quotecache.WithClock(func() time.Time { return at }))
	for _, q := range quotes {
		if err := c.Upsert(q); err != nil {
			t.Fatalf("seed %s: %v", q.Venue, err)
		}
	}
	return c
}

func TestScanFindsCrossedDirections(t *testing.T) {
	cache := seedCache(t,
		book("alpha", levels("99", "10"), levels("100", "10")),
		book("beta", levels("103", "10"), levels("104", "10")),
	)
	det := NewDetector(cache, NewCalculator(testFees(t), d("10")), discard())

	ops := det.Scan(at)
	if len(ops) != 1 {
		t.Fatalf("scan = %d opportunities, want 1", len(ops))
	}
	op := ops[0]
	if op.BuyVenue != "alpha" || op.SellVenue != "beta" {
		t.Errorf("direction = %s -> %s, want alpha -> beta", op.BuyVenue, op.SellVenue)
	}
	// The reverse direction (buy beta at 104, sell alpha at 99) is not
	// crossed and must not appear even as infeasible.
}

func TestScanSkipsSingleVenueSymbols(t *testing.T) {
	cache := seedCache(t, book("alpha", levels("99", "10"), levels("100", "10")))
	det := NewDetector(cache, NewCalculator(testFees(t), d("10")), discard())
	if ops := det.Scan(at); len(ops) != 0 {
		t.Fatalf("scan = %d opportunities with one venue, want 0", len(ops))
	}
}

func TestScanNoOverlapNoCandidates(t *testing.T) {
	// Books overlap-free in both directions: alpha 99/100, beta 98/101.
	cache := seedCache(t,
		book("alpha", levels("99", "10"), levels("100", "10")),
		book("beta", levels("98", "10"), levels("101", "10")),
	)
	det := NewDetector(cache, NewCalculator(testFees(t), d("10")), discard())
	if ops := det.Scan(at); len(ops) != 0 {
		t.Fatalf("scan = %d opportunities without crossing, want 0", len(ops))
	}
}

func TestScanDeterministic(t *testing.T) {
	cache := seedCache(t,
		book("alpha", levels("99", "10"), levels("100", "10")),
		book("beta", levels("103", "10"), levels("104", "10")),
		book("gamma", levels("105", "10"), levels("106", "10")),
	)
	det := NewDetector(cache, NewCalculator(testFees(t), d("10")), discard())

	first := det.Scan(at)
	second := det.Scan(at)
	if len(first) != len(second) {
		t.Fatalf("scan lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		// IDs are fresh per evaluation; everything else must repeat exactly.
		a, b := first[i], second[i]
		a.ID, b.ID = "", ""
		if !reflect.DeepEqual(a, b) {
			t.Errorf("scan %d differs:\n%+v\n%+v", i, a, b)
		}
	}
}

func TestScanExcludesDisconnectedVenue(t *testing.T) {
	cache := seedCache(t,
		book("alpha", levels("99", "10"), levels("100", "10")),
		book("beta", levels("103", "10"), levels("104", "10")),
	)
	det := NewDetector(cache, NewCalculator(testFees(t), d("10")), discard())

	cache.MarkDisconnected("beta")
	if ops := det.Scan(at); len(ops) != 0 {
		t.Fatalf("scan = %d opportunities with beta disconnected, want 0", len(ops))
	}
}
