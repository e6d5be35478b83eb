package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// VenueStatus is the connectivity state of a venue feed.
type VenueStatus string

const (
	VenueConnected    VenueStatus = "connected"
	VenueStale        VenueStatus = "stale"
	VenueDisconnected VenueStatus = "disconnected"
)

// Venue is a trading exchange providing quotes for one or more symbols.
// Venues are created at configuration load and never removed at runtime;
// a disabled venue is marked disconnected, not deleted.
type Venue struct {
	Name     string
	MakerFee decimal.Decimal
	TakerFee decimal.Decimal
	Status   VenueStatus
}

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Quote is the latest known orderbook view for one (venue, symbol) pair:
// top-of-book plus ordered depth levels on each side. A Quote is replaced
// wholesale on every update, never patched. Bids are sorted descending and
// asks ascending, both moving away from top-of-book.
type Quote struct {
	Venue      string       `json:"venue"`
	Symbol     Symbol       `json:"symbol"`
	Bids       []PriceLevel `json:"bids"`
	Asks       []PriceLevel `json:"asks"`
	Timestamp  time.Time    `json:"timestamp"`   // venue event time
	ReceivedAt time.Time    `json:"received_at"` // local arrival time
}

// BestBid returns the top bid level. The second return is false when the bid
// side is empty.
func (q Quote) BestBid() (PriceLevel, bool) {
	if len(q.Bids) == 0 {
		return PriceLevel{}, false
	}
	return q.Bids[0], true
}

// BestAsk returns the top ask level.
func (q Quote) BestAsk() (PriceLevel, bool) {
	if len(q.Asks) == 0 {
		return PriceLevel{}, false
	}
	return q.Asks[0], true
}

// Age returns how long ago the quote arrived, relative to now.
func (q Quote) Age(now time.Time) time.Duration {
	return now.Sub(q.ReceivedAt)
}

// QuoteStatus pairs a cached Quote with its data-quality flags for the query
// surface. Stale quotes are excluded from detection but still exposed here.
type QuoteStatus struct {
	Quote    Quote `json:"quote"`
	Fresh    bool  `json:"fresh"`
	Eligible bool  `json:"eligible"` // false while the venue is disconnected
}

// RawLevel is an unparsed price/size pair as received from a venue feed.
type RawLevel struct {
	Price string
	Size  string
}

// RawSnapshot is a venue-shaped orderbook snapshot before normalization:
// venue-local symbol naming and string-encoded numbers.
type RawSnapshot struct {
	Venue     string
	Symbol    string
	Bids      []RawLevel
	Asks      []RawLevel
	Timestamp time.Time
}

// Tick is a flattened top-of-book observation for persistence.
type Tick struct {
	Timestamp time.Time
	Venue     string
	Symbol    Symbol
	Bid       decimal.Decimal
	BidSize   decimal.Decimal
	Ask       decimal.Decimal
	AskSize   decimal.Decimal
}
