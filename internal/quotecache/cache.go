// Package quotecache is the process-wide store of the latest known quote per
// (venue, symbol) pair. Entries are replaced wholesale and atomically; there
// is no partial update path. Each entry carries its own lock so ingestion
// tasks for different venues never contend with each other, and readers see
// per-entry consistent values rather than a locked cross-venue transaction --
// cross-venue consistency is approximate because feeds are independently
// timed.
package quotecache

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/quantfeed/arbscope/internal/domain"
)

type key struct {
	venue  string
	symbol domain.Symbol
}

type entry struct {
	mu       sync.RWMutex
	quote    domain.Quote
	eligible bool
}

// Cache holds the latest quotes and venue connectivity state.
type Cache struct {
	staleAfter time.Duration
	now        func() time.Time

	mu      sync.RWMutex // guards the maps, not entry contents
	entries map[key]*entry
	venues  map[string]domain.VenueStatus
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a Cache that considers quotes older than staleAfter stale.
func New(staleAfter time.Duration, opts ...Option) *Cache {
	c := &Cache{
		staleAfter: staleAfter,
		now:        time.Now,
		entries:    make(map[key]*entry),
		venues:     make(map[string]domain.VenueStatus),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upsert replaces the cached quote for (quote.Venue, quote.Symbol). The swap
// is all-or-nothing for the pair. Within one venue, updates for the same
// symbol must apply in arrival order: an update older than the cached entry
// is rejected with ErrOutOfOrder instead of clobbering newer data. A
// successful upsert re-enables an entry disabled by MarkDisconnected and
// marks the venue connected.
func (c *Cache) Upsert(quote domain.Quote) error {
	if quote.Venue == "" || quote.Symbol.IsZero() {
		return fmt.Errorf("quotecache: upsert: %w", domain.ErrInvalidQuote)
	}
	k := key{venue: quote.Venue, symbol: quote.Symbol}

	c.mu.Lock()
	e, ok := c.entries[k]
	if !ok {
		e = &entry{}
		c.entries[k] = e
	}
	c.mu.Unlock()

	e.mu.Lock()
	if !e.quote.ReceivedAt.IsZero() && quote.ReceivedAt.Before(e.quote.ReceivedAt) {
		e.mu.Unlock()
		return fmt.Errorf("quotecache: upsert %s %s: %w", quote.Venue, quote.Symbol, domain.ErrOutOfOrder)
	}
	e.quote = quote
	e.eligible = true
	e.mu.Unlock()

	// Venue status only flips to connected on an accepted update; a rejected
	// stale arrival says nothing about current connectivity.
	c.mu.Lock()
	c.venues[quote.Venue] = domain.VenueConnected
	c.mu.Unlock()
	return nil
}

// Snapshot returns the fresh, eligible quotes for a symbol across all venues
// as of call time. Concurrent upserts for other venues are not blocked; the
// result is a best-effort cross-venue view.
func (c *Cache) Snapshot(symbol domain.Symbol) []domain.Quote {
	now := c.now()
	var out []domain.Quote
	for _, e := range c.entriesFor(symbol) {
		e.mu.RLock()
		q, ok := e.quote, e.eligible
		e.mu.RUnlock()
		if ok && q.Age(now) < c.staleAfter {
			out = append(out, q)
		}
	}
	sortQuotes(out)
	return out
}

// All returns every cached quote for a symbol with its freshness and
// eligibility flags. Stale and disconnected entries are included for
// display and debugging; detection must use Snapshot.
func (c *Cache) All(symbol domain.Symbol) []domain.QuoteStatus {
	now := c.now()
	var out []domain.QuoteStatus
	for _, e := range c.entriesFor(symbol) {
		e.mu.RLock()
		st := domain.QuoteStatus{
			Quote:    e.quote,
			Fresh:    e.quote.Age(now) < c.staleAfter,
			Eligible: e.eligible,
		}
		e.mu.RUnlock()
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Quote.Venue < out[j].Quote.Venue })
	return out
}

// Symbols returns all symbols with at least one cached entry, sorted.
func (c *Cache) Symbols() []domain.Symbol {
	c.mu.RLock()
	seen := make(map[domain.Symbol]bool)
	for k := range c.entries {
		seen[k.symbol] = true
	}
	c.mu.RUnlock()

	out := make([]domain.Symbol, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// MarkDisconnected flags every entry for the venue as ineligible until the
// next successful upsert refreshes it. Cached data is retained for display.
func (c *Cache) MarkDisconnected(venue string) {
	c.mu.Lock()
	c.venues[venue] = domain.VenueDisconnected
	var affected []*entry
	for k, e := range c.entries {
		if k.venue == venue {
			affected = append(affected, e)
		}
	}
	c.mu.Unlock()

	for _, e := range affected {
		e.mu.Lock()
		e.eligible = false
		e.mu.Unlock()
	}
}

// MarkConnected records venue connectivity. Entries stay ineligible until
// refreshed by an upsert; a heartbeat alone does not resurrect old data.
func (c *Cache) MarkConnected(venue string) {
	c.mu.Lock()
	c.venues[venue] = domain.VenueConnected
	c.mu.Unlock()
}

// VenueStatus returns the last known connectivity state for a venue.
func (c *Cache) VenueStatus(venue string) domain.VenueStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if st, ok := c.venues[venue]; ok {
		return st
	}
	return domain.VenueDisconnected
}

// Venues returns the connectivity state of every known venue.
func (c *Cache) Venues() map[string]domain.VenueStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]domain.VenueStatus, len(c.venues))
	for v, st := range c.venues {
		out[v] = st
	}
	return out
}

func (c *Cache) entriesFor(symbol domain.Symbol) []*entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []*entry
	for k, e := range c.entries {
		if k.symbol == symbol {
			out = append(out, e)
		}
	}
	return out
}

func sortQuotes(quotes []domain.Quote) {
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Venue < quotes[j].Venue })
}
