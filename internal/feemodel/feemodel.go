// Package feemodel holds the layered fee schedule: per-venue trading fee
// tiers and per (venue, asset, network) withdrawal/deposit fees. It is a pure
// lookup structure built once from validated configuration; reloading means
// building a new Model, never mutating a live one.
//
// Lookups for combinations with no configured entry fail with
// domain.ErrMissingFeeData. Callers must treat that as "cannot evaluate",
// never as a zero fee, or net profit would be silently overstated.
package feemodel

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/arbscope/internal/domain"
)

// VenueFees is a venue's trading fee tier.
type VenueFees struct {
	Maker decimal.Decimal
	Taker decimal.Decimal
}

// TransferEntry is one configured (venue, asset, network) row of the
// transfer fee schedule.
type TransferEntry struct {
	Venue    string
	Asset    string
	Network  string
	Withdraw domain.TransferFee
	Deposit  domain.TransferFee
}

type routeKey struct {
	venue   string
	asset   string
	network string
}

// Model is the loaded fee schedule. It is immutable after New and safe for
// concurrent readers.
type Model struct {
	trading  map[string]VenueFees
	withdraw map[routeKey]domain.TransferFee
	deposit  map[routeKey]domain.TransferFee
}

// New builds a Model from per-venue trading fees and transfer entries.
// Venue names are case-insensitive; assets and networks are normalized to
// upper case.
func New(trading map[string]VenueFees, entries []TransferEntry) *Model {
	m := &Model{
		trading:  make(map[string]VenueFees, len(trading)),
		withdraw: make(map[routeKey]domain.TransferFee, len(entries)),
		deposit:  make(map[routeKey]domain.TransferFee, len(entries)),
	}
	for venue, fees := range trading {
		m.trading[normVenue(venue)] = fees
	}
	for _, e := range entries {
		k := routeKey{normVenue(e.Venue), normAsset(e.Asset), normAsset(e.Network)}
		m.withdraw[k] = e.Withdraw
		m.deposit[k] = e.Deposit
	}
	return m
}

// TradingFee returns the fractional trading fee for a venue and role.
func (m *Model) TradingFee(venue string, role domain.FeeRole) (decimal.Decimal, error) {
	fees, ok := m.trading[normVenue(venue)]
	if !ok {
		return decimal.Zero, fmt.Errorf("feemodel: trading fee for venue %q: %w", venue, domain.ErrMissingFeeData)
	}
	switch role {
	case domain.FeeRoleMaker:
		return fees.Maker, nil
	case domain.FeeRoleTaker:
		return fees.Taker, nil
	default:
		return decimal.Zero, fmt.Errorf("feemodel: unknown fee role %q: %w", role, domain.ErrMissingFeeData)
	}
}

// WithdrawalFee returns the withdrawal fee for moving asset off venue over
// network.
func (m *Model) WithdrawalFee(venue, asset, network string) (domain.TransferFee, error) {
	fee, ok := m.withdraw[routeKey{normVenue(venue), normAsset(asset), normAsset(network)}]
	if !ok {
		return domain.TransferFee{}, fmt.Errorf(
			"feemodel: withdrawal fee %s/%s via %s: %w", venue, asset, network, domain.ErrMissingFeeData)
	}
	return fee, nil
}

// DepositFee returns the deposit fee for moving asset onto venue over
// network. Typically zero in practice, but a zero entry must still be
// configured explicitly; absence is missing data, not a free deposit.
func (m *Model) DepositFee(venue, asset, network string) (domain.TransferFee, error) {
	fee, ok := m.deposit[routeKey{normVenue(venue), normAsset(asset), normAsset(network)}]
	if !ok {
		return domain.TransferFee{}, fmt.Errorf(
			"feemodel: deposit fee %s/%s via %s: %w", venue, asset, network, domain.ErrMissingFeeData)
	}
	return fee, nil
}

// Networks lists the networks with a configured withdrawal entry for
// (venue, asset), sorted for deterministic iteration.
func (m *Model) Networks(venue, asset string) []string {
	v, a := normVenue(venue), normAsset(asset)
	var nets []string
	for k := range m.withdraw {
		if k.venue == v && k.asset == a {
			nets = append(nets, k.network)
		}
	}
	sort.Strings(nets)
	return nets
}

// Route selects the cheapest configured transfer path for moving asset from
// one venue to another: a network that has both a withdrawal entry on the
// source and a deposit entry on the destination, minimizing the fixed
// withdrawal fee (then the fractional part). Returns ErrMissingFeeData when
// no common network is configured.
func (m *Model) Route(fromVenue, toVenue, asset string) (domain.TransferRoute, error) {
	to, a := normVenue(toVenue), normAsset(asset)

	var best domain.TransferRoute
	found := false
	for _, network := range m.Networks(fromVenue, asset) {
		dep, ok := m.deposit[routeKey{to, a, network}]
		if !ok {
			continue
		}
		wd := m.withdraw[routeKey{normVenue(fromVenue), a, network}]
		if !found || cheaper(wd, best.Withdrawal) {
			best = domain.TransferRoute{
				Asset:      a,
				Network:    network,
				Withdrawal: wd,
				Deposit:    dep,
			}
			found = true
		}
	}
	if !found {
		return domain.TransferRoute{}, fmt.Errorf(
			"feemodel: no transfer route %s -> %s for %s: %w", fromVenue, toVenue, asset, domain.ErrMissingFeeData)
	}
	return best, nil
}

// Venues returns the venue names with configured trading fees, sorted.
func (m *Model) Venues() []string {
	names := make([]string, 0, len(m.trading))
	for v := range m.trading {
		names = append(names, v)
	}
	sort.Strings(names)
	return names
}

func cheaper(a, b domain.TransferFee) bool {
	if !a.Fixed.Equal(b.Fixed) {
		return a.Fixed.LessThan(b.Fixed)
	}
	return a.Fraction.LessThan(b.Fraction)
}

func normVenue(v string) string { return strings.ToLower(strings.TrimSpace(v)) }
func normAsset(a string) string { return strings.ToUpper(strings.TrimSpace(a)) }
