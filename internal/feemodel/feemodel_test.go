package feemodel

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/arbscope/internal/domain"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func testModel() *Model {
	trading := map[string]VenueFees{
		"binance": {Maker: d("0.0002"), Taker: d("0.001")},
		"okx":     {Maker: d("0.0001"), Taker: d("0.0008")},
	}
	entries := []TransferEntry{
		{
			Venue: "binance", Asset: "BTC", Network: "BTC",
			Withdraw: domain.TransferFee{Fixed: d("0.0002"), Minimum: d("0.001")},
			Deposit:  domain.TransferFee{},
		},
		{
			Venue: "okx", Asset: "BTC", Network: "BTC",
			Withdraw: domain.TransferFee{Fixed: d("0.0003"), Minimum: d("0.001")},
			Deposit:  domain.TransferFee{},
		},
		{
			Venue: "binance", Asset: "USDT", Network: "TRX",
			Withdraw: domain.TransferFee{Fixed: d("1")},
			Deposit:  domain.TransferFee{},
		},
		{
			Venue: "binance", Asset: "USDT", Network: "ERC20",
			Withdraw: domain.TransferFee{Fixed: d("25")},
			Deposit:  domain.TransferFee{},
		},
		{
			Venue: "okx", Asset: "USDT", Network: "TRX",
			Withdraw: domain.TransferFee{Fixed: d("1.2")},
			Deposit:  domain.TransferFee{},
		},
		{
			Venue: "okx", Asset: "USDT", Network: "ERC20",
			Withdraw: domain.TransferFee{Fixed: d("20")},
			Deposit:  domain.TransferFee{},
		},
	}
	return New(trading, entries)
}

func TestTradingFee(t *testing.T) {
	m := testModel()

	tests := []struct {
		venue string
		role  domain.FeeRole
		want  string
	}{
		{"binance", domain.FeeRoleTaker, "0.001"},
		{"binance", domain.FeeRoleMaker, "0.0002"},
		{"Binance", domain.FeeRoleTaker, "0.001"}, // case-insensitive
		{"okx", domain.FeeRoleTaker, "0.0008"},
	}
	for _, tt := range tests {
		got, err := m.TradingFee(tt.venue, tt.role)
		if err != nil {
			t.Fatalf("TradingFee(%s,%s): %v", tt.venue, tt.role, err)
		}
		if !got.Equal(d(tt.want)) {
			t.Errorf("TradingFee(%s,%s)=%s want %s", tt.venue, tt.role, got, tt.want)
		}
	}
}

func TestTradingFeeMissing(t *testing.T) {
	m := testModel()
	if _, err := m.TradingFee("kraken", domain.FeeRoleTaker); !errors.Is(err, domain.ErrMissingFeeData) {
		t.Fatalf("expected ErrMissingFeeData, got %v", err)
	}
}

func TestWithdrawalFeeMissingIsNotZero(t *testing.T) {
	m := testModel()
	_, err := m.WithdrawalFee("binance", "ETH", "ERC20")
	if !errors.Is(err, domain.ErrMissingFeeData) {
		t.Fatalf("expected ErrMissingFeeData for unconfigured asset, got %v", err)
	}
}

func TestDepositFeeExplicitZero(t *testing.T) {
	m := testModel()
	fee, err := m.DepositFee("okx", "USDT", "TRX")
	if err != nil {
		t.Fatalf("DepositFee: %v", err)
	}
	if !fee.Apply(d("100")).IsZero() {
		t.Errorf("expected zero deposit fee, got %s", fee.Apply(d("100")))
	}
}

func TestRoutePicksCheapestCommonNetwork(t *testing.T) {
	m := testModel()
	route, err := m.Route("binance", "okx", "USDT")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if route.Network != "TRX" {
		t.Errorf("route network = %s, want TRX", route.Network)
	}
	if !route.Withdrawal.Fixed.Equal(d("1")) {
		t.Errorf("route withdrawal fixed = %s, want 1", route.Withdrawal.Fixed)
	}
}

func TestRouteMissing(t *testing.T) {
	m := testModel()
	if _, err := m.Route("binance", "okx", "SOL"); !errors.Is(err, domain.ErrMissingFeeData) {
		t.Fatalf("expected ErrMissingFeeData for unconfigured route, got %v", err)
	}
}

func TestTransferFeeApply(t *testing.T) {
	fee := domain.TransferFee{Fixed: d("1"), Fraction: d("0.001")}
	got := fee.Apply(d("500"))
	if !got.Equal(d("1.5")) {
		t.Errorf("Apply(500) = %s, want 1.5", got)
	}
}
