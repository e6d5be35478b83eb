package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfeed/arbscope/internal/domain"
)

// TickStore implements domain.TickStore. Batches go through COPY, which is
// the cheap path for the write rates a multi-venue feed produces.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore creates a TickStore backed by the given connection pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

// InsertBatch bulk-inserts ticks via COPY. An empty batch is a no-op.
func (s *TickStore) InsertBatch(ctx context.Context, ticks []domain.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(ticks))
	for _, t := range ticks {
		rows = append(rows, []any{
			t.Timestamp, t.Venue, t.Symbol.String(),
			t.Bid, t.BidSize, t.Ask, t.AskSize,
		})
	}

	_, err := s.pool.CopyFrom(ctx,
		pgx.Identifier{"ticker_data"},
		[]string{"ts", "venue", "symbol", "bid", "bid_size", "ask", "ask_size"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("postgres: copy %d ticks: %w", len(ticks), err)
	}
	return nil
}

const tickSelectCols = `ts, venue, symbol, bid, bid_size, ask, ask_size`

// QueryRange returns ticks for a symbol within [start, end), oldest first.
func (s *TickStore) QueryRange(ctx context.Context, symbol domain.Symbol, start, end time.Time) ([]domain.Tick, error) {
	query := `SELECT ` + tickSelectCols + `
		FROM ticker_data
		WHERE symbol = $1 AND ts >= $2 AND ts < $3
		ORDER BY ts ASC`

	rows, err := s.pool.Query(ctx, query, symbol.String(), start, end)
	if err != nil {
		return nil, fmt.Errorf("postgres: query ticks %s: %w", symbol, err)
	}
	defer rows.Close()
	return scanTicks(rows)
}

// ListBefore returns every tick older than the cutoff, oldest first, for the
// archiver to export before pruning.
func (s *TickStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Tick, error) {
	query := `SELECT ` + tickSelectCols + `
		FROM ticker_data
		WHERE ts < $1
		ORDER BY ts ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ticks before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()
	return scanTicks(rows)
}

// DeleteBefore prunes ticks older than the cutoff and reports how many rows
// went away.
func (s *TickStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ticker_data WHERE ts < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete ticks before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanTicks(rows pgx.Rows) ([]domain.Tick, error) {
	var ticks []domain.Tick
	for rows.Next() {
		var t domain.Tick
		var symbol string
		if err := rows.Scan(&t.Timestamp, &t.Venue, &symbol, &t.Bid, &t.BidSize, &t.Ask, &t.AskSize); err != nil {
			return nil, fmt.Errorf("postgres: scan tick: %w", err)
		}
		sym, err := domain.ParseSymbol(symbol)
		if err != nil {
			return nil, fmt.Errorf("postgres: tick symbol %q: %w", symbol, err)
		}
		t.Symbol = sym
		ticks = append(ticks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: tick rows: %w", err)
	}
	return ticks, nil
}

// Compile-time interface check.
var _ domain.TickStore = (*TickStore)(nil)
