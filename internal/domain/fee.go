package domain

import "github.com/shopspring/decimal"

// FeeRole distinguishes maker and taker trading fees.
type FeeRole string

const (
	FeeRoleMaker FeeRole = "maker"
	FeeRoleTaker FeeRole = "taker"
)

// TransferFee describes the cost of moving an asset on or off a venue over a
// specific network. Fees are charged in units of the transferred asset:
// total = Fixed + amount*Fraction. Minimum is the smallest transferable
// amount; below it the venue rejects the withdrawal outright.
type TransferFee struct {
	Fixed    decimal.Decimal `json:"fixed"`
	Fraction decimal.Decimal `json:"fraction"`
	Minimum  decimal.Decimal `json:"minimum"`
}

// Apply returns the fee charged for transferring the given amount.
func (f TransferFee) Apply(amount decimal.Decimal) decimal.Decimal {
	return f.Fixed.Add(amount.Mul(f.Fraction))
}

// TransferRoute is a concrete path for moving an asset between two venues:
// the shared network plus the withdrawal fee on the source venue and the
// deposit fee on the destination venue.
type TransferRoute struct {
	Asset      string      `json:"asset"`
	Network    string      `json:"network"`
	Withdrawal TransferFee `json:"withdrawal"`
	Deposit    TransferFee `json:"deposit"`
}
