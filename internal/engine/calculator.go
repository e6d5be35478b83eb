// Package engine contains the arbitrage detection core: depth-aware net
// profit calculation, cross-venue scanning, and ranking with re-alert
// suppression. Everything here is pure computation over snapshots; feeds,
// persistence and transport live elsewhere.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quantfeed/arbscope/internal/domain"
	"github.com/quantfeed/arbscope/internal/feemodel"
)

// Calculator evaluates one buy/sell direction at a configured target size.
// All leg math walks real depth levels; top-of-book alone is never trusted
// for sizing.
type Calculator struct {
	fees       *feemodel.Model
	targetSize decimal.Decimal
}

// NewCalculator creates a Calculator. targetSize is in base-asset units.
func NewCalculator(fees *feemodel.Model, targetSize decimal.Decimal) *Calculator {
	return &Calculator{fees: fees, targetSize: targetSize}
}

// Evaluate computes the full cost breakdown for buying on buy's asks and
// selling into sell's bids. Missing fee schedule entries make the result
// infeasible with the cause recorded; they are never silently zeroed. An
// error is returned only when the books cannot support any fill at all.
func (c *Calculator) Evaluate(buy, sell domain.Quote, at time.Time) (domain.Opportunity, error) {
	op := domain.Opportunity{
		ID:         uuid.NewString(),
		Symbol:     buy.Symbol,
		BuyVenue:   buy.Venue,
		SellVenue:  sell.Venue,
		ComputedAt: at,
	}
	if len(buy.Asks) == 0 || len(sell.Bids) == 0 {
		return domain.Opportunity{}, fmt.Errorf("engine: evaluate %s %s->%s: %w",
			buy.Symbol, buy.Venue, sell.Venue, domain.ErrInsufficientDepth)
	}

	// The evaluated size is bounded by displayed depth on both legs.
	size := decimal.Min(c.targetSize, sideDepth(buy.Asks), sideDepth(sell.Bids))
	if size.Sign() <= 0 {
		return domain.Opportunity{}, fmt.Errorf("engine: evaluate %s %s->%s: %w",
			buy.Symbol, buy.Venue, sell.Venue, domain.ErrInsufficientDepth)
	}

	buyNotional, buyPastTop := fill(buy.Asks, size)
	sellNotional, sellPastTop := fill(sell.Bids, size)

	op.Size = size
	op.AvgBuyPrice = buyNotional.Div(size)
	op.AvgSellPrice = sellNotional.Div(size)
	op.GrossSpread = sellNotional.Sub(buyNotional)
	op.Partial = size.LessThan(c.targetSize) || buyPastTop || sellPastTop

	buyFee, err := c.fees.TradingFee(buy.Venue, domain.FeeRoleTaker)
	if err != nil {
		return infeasible(op, err), nil
	}
	sellFee, err := c.fees.TradingFee(sell.Venue, domain.FeeRoleTaker)
	if err != nil {
		return infeasible(op, err), nil
	}
	op.TradingFees = buyNotional.Mul(buyFee).Add(sellNotional.Mul(sellFee))

	route, err := c.fees.Route(buy.Venue, sell.Venue, buy.Symbol.Base)
	if err != nil {
		return infeasible(op, err), nil
	}
	op.Network = route.Network

	// Transfer fees are denominated in the base asset; value them at the
	// blended buy price, the price the asset was just acquired at.
	op.WithdrawalFee = route.Withdrawal.Apply(size).Mul(op.AvgBuyPrice)
	op.DepositFee = route.Deposit.Apply(size).Mul(op.AvgBuyPrice)

	op.NetProfit = op.GrossSpread.Sub(op.TradingFees).Sub(op.WithdrawalFee).Sub(op.DepositFee)
	op.NetProfitRate = op.NetProfit.Div(buyNotional)

	// The full breakdown stays populated even when the transfer cannot
	// happen, so callers see what the direction would have yielded.
	if route.Withdrawal.Minimum.Sign() > 0 && size.LessThan(route.Withdrawal.Minimum) {
		return infeasible(op, fmt.Errorf("size %s below withdrawal minimum %s on %s/%s",
			size, route.Withdrawal.Minimum, buy.Venue, route.Network)), nil
	}

	if op.NetProfit.Sign() > 0 {
		op.Verdict = domain.VerdictFeasible
	} else {
		op.Verdict = domain.VerdictInfeasible
		op.Reason = "net profit not positive after fees"
	}
	return op, nil
}

func infeasible(op domain.Opportunity, cause error) domain.Opportunity {
	op.Verdict = domain.VerdictInfeasible
	if errors.Is(cause, domain.ErrMissingFeeData) {
		op.Reason = "missing fee data: " + cause.Error()
	} else {
		op.Reason = cause.Error()
	}
	return op
}

// fill walks levels best-first until size is consumed and returns the
// notional paid or received. pastTop reports that the fill needed more than
// the top level. Callers guarantee size <= total displayed depth.
func fill(levels []domain.PriceLevel, size decimal.Decimal) (notional decimal.Decimal, pastTop bool) {
	remaining := size
	for i, lv := range levels {
		if remaining.Sign() <= 0 {
			break
		}
		take := decimal.Min(remaining, lv.Size)
		notional = notional.Add(take.Mul(lv.Price))
		remaining = remaining.Sub(take)
		if i > 0 {
			pastTop = true
		}
	}
	return notional, pastTop
}

func sideDepth(levels []domain.PriceLevel) decimal.Decimal {
	total := decimal.Zero
	for _, lv := range levels {
		total = total.Add(lv.Size)
	}
	return total
}
