package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfeed/arbscope/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const oppSelectCols = `id, symbol, buy_venue, sell_venue, size,
	avg_buy_price, avg_sell_price, gross_spread, trading_fees,
	withdrawal_fee, deposit_fee, network, net_profit, net_profit_rate,
	partial_fill, verdict, reason, computed_at`

// Insert stores one emitted opportunity.
func (s *OpportunityStore) Insert(ctx context.Context, opp domain.Opportunity) error {
	const query = `
		INSERT INTO opportunities (
			id, symbol, buy_venue, sell_venue, size,
			avg_buy_price, avg_sell_price, gross_spread, trading_fees,
			withdrawal_fee, deposit_fee, network, net_profit, net_profit_rate,
			partial_fill, verdict, reason, computed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9,
			$10, $11, $12, $13, $14,
			$15, $16, $17, $18
		)`

	_, err := s.pool.Exec(ctx, query,
		opp.ID, opp.Symbol.String(), opp.BuyVenue, opp.SellVenue, opp.Size,
		opp.AvgBuyPrice, opp.AvgSellPrice, opp.GrossSpread, opp.TradingFees,
		opp.WithdrawalFee, opp.DepositFee, opp.Network, opp.NetProfit, opp.NetProfitRate,
		opp.Partial, string(opp.Verdict), opp.Reason, opp.ComputedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert opportunity %s: %w", opp.ID, err)
	}
	return nil
}

// ListRecent returns the most recent opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppSelectCols + ` FROM opportunities ORDER BY computed_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent opportunities: %w", err)
	}
	defer rows.Close()
	return scanOpportunities(rows)
}

// ListBefore returns opportunities older than the cutoff, oldest first.
func (s *OpportunityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Opportunity, error) {
	query := `SELECT ` + oppSelectCols + `
		FROM opportunities
		WHERE computed_at < $1
		ORDER BY computed_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanOpportunities(rows)
}

// DeleteBefore prunes opportunities older than the cutoff.
func (s *OpportunityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM opportunities WHERE computed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete opportunities before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanOpportunities(rows pgx.Rows) ([]domain.Opportunity, error) {
	var opps []domain.Opportunity
	for rows.Next() {
		var opp domain.Opportunity
		var symbol, verdict string
		if err := rows.Scan(
			&opp.ID, &symbol, &opp.BuyVenue, &opp.SellVenue, &opp.Size,
			&opp.AvgBuyPrice, &opp.AvgSellPrice, &opp.GrossSpread, &opp.TradingFees,
			&opp.WithdrawalFee, &opp.DepositFee, &opp.Network, &opp.NetProfit, &opp.NetProfitRate,
			&opp.Partial, &verdict, &opp.Reason, &opp.ComputedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		sym, err := domain.ParseSymbol(symbol)
		if err != nil {
			return nil, fmt.Errorf("postgres: opportunity symbol %q: %w", symbol, err)
		}
		opp.Symbol = sym
		opp.Verdict = domain.Verdict(verdict)
		opps = append(opps, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: opportunity rows: %w", err)
	}
	return opps, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
