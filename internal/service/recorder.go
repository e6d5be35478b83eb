package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/quantfeed/arbscope/internal/domain"
)

// TickRecorder buffers top-of-book ticks and writes them to the tick store
// in batches. Recording is fire-and-forget: a full buffer drops the tick
// rather than stalling the feed path, and store failures are logged and the
// batch discarded. Historical ticks are diagnostics, not ledger entries.
type TickRecorder struct {
	store     domain.TickStore
	batchSize int
	interval  time.Duration
	in        chan domain.Tick
	logger    *slog.Logger
}

// NewTickRecorder creates a recorder flushing every interval or whenever
// batchSize ticks have accumulated, whichever comes first.
func NewTickRecorder(store domain.TickStore, batchSize int, interval time.Duration, logger *slog.Logger) *TickRecorder {
	if batchSize <= 0 {
		batchSize = 500
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &TickRecorder{
		store:     store,
		batchSize: batchSize,
		interval:  interval,
		in:        make(chan domain.Tick, batchSize*4),
		logger:    logger.With(slog.String("component", "tick_recorder")),
	}
}

// Record enqueues a tick. Safe for concurrent callers; never blocks.
func (r *TickRecorder) Record(tick domain.Tick) {
	select {
	case r.in <- tick:
	default:
		r.logger.Warn("tick buffer full, dropping",
			slog.String("venue", tick.Venue),
			slog.String("symbol", tick.Symbol.String()),
		)
	}
}

// Run drains the buffer until ctx ends, then flushes what remains.
func (r *TickRecorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	batch := make([]domain.Tick, 0, r.batchSize)
	for {
		select {
		case <-ctx.Done():
			r.flush(context.WithoutCancel(ctx), batch)
			return ctx.Err()
		case tick := <-r.in:
			batch = append(batch, tick)
			if len(batch) >= r.batchSize {
				r.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			r.flush(ctx, batch)
			batch = batch[:0]
		}
	}
}

func (r *TickRecorder) flush(ctx context.Context, batch []domain.Tick) {
	if len(batch) == 0 {
		return
	}
	if err := r.store.InsertBatch(ctx, batch); err != nil {
		r.logger.Error("tick batch insert failed",
			slog.Int("count", len(batch)),
			slog.String("error", err.Error()),
		)
		return
	}
	r.logger.Debug("tick batch flushed", slog.Int("count", len(batch)))
}
