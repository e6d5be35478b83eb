package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Verdict is the feasibility outcome of an evaluated opportunity.
type Verdict string

const (
	VerdictFeasible   Verdict = "feasible"
	VerdictInfeasible Verdict = "infeasible"
)

// Opportunity is one evaluated cross-venue arbitrage direction: buy Symbol on
// BuyVenue, transfer, sell on SellVenue. Opportunities are immutable once
// emitted; the next evaluation supersedes them rather than mutating in place.
// Every record is self-contained so downstream consumers can render it
// without further lookups.
type Opportunity struct {
	ID        string `json:"id"`
	Symbol    Symbol `json:"symbol"`
	BuyVenue  string `json:"buy_venue"`
	SellVenue string `json:"sell_venue"`

	// Size is the base-asset amount actually evaluated, bounded by depth on
	// both legs. AvgBuyPrice/AvgSellPrice are the depth-walked blended
	// prices at that size.
	Size         decimal.Decimal `json:"size"`
	AvgBuyPrice  decimal.Decimal `json:"avg_buy_price"`
	AvgSellPrice decimal.Decimal `json:"avg_sell_price"`

	GrossSpread   decimal.Decimal `json:"gross_spread"`
	TradingFees   decimal.Decimal `json:"trading_fees"`
	WithdrawalFee decimal.Decimal `json:"withdrawal_fee"`
	DepositFee    decimal.Decimal `json:"deposit_fee"`
	Network       string          `json:"network,omitempty"`

	// NetProfit and NetProfitRate are reported even when negative so callers
	// can show why a direction is not profitable.
	NetProfit     decimal.Decimal `json:"net_profit"`
	NetProfitRate decimal.Decimal `json:"net_profit_rate"`

	Partial    bool      `json:"partial"` // fill extended past top-of-book or depth ran out
	Verdict    Verdict   `json:"verdict"`
	Reason     string    `json:"reason,omitempty"` // set when infeasible
	ComputedAt time.Time `json:"computed_at"`
}

// Feasible reports whether the verdict is feasible.
func (o Opportunity) Feasible() bool {
	return o.Verdict == VerdictFeasible
}

// Key identifies the opportunity direction for deduplication: the same
// (symbol, buy venue, sell venue) triple maps to the same key across ticks.
func (o Opportunity) Key() string {
	return o.Symbol.String() + "|" + o.BuyVenue + "|" + o.SellVenue
}
