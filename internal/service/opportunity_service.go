package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/arbscope/internal/domain"
	"github.com/quantfeed/arbscope/internal/engine"
	"github.com/quantfeed/arbscope/internal/notify"
)

var hundred = decimal.NewFromInt(100)

// OpportunityService drives the detection loop: scan on an interval, rank,
// persist and publish what passes, and alert newly seen directions. It also
// serves the query side from its in-memory view of the latest scan.
type OpportunityService struct {
	detector *engine.Detector
	ranker   *engine.Ranker
	interval time.Duration

	store    domain.OpportunityStore
	bus      domain.SignalBus
	notifier *notify.Notifier
	logger   *slog.Logger

	mu     sync.RWMutex
	latest []domain.Opportunity // ranked output of the last scan
}

// NewOpportunityService creates the service. store, bus and notifier may each
// be nil to disable persistence, event publication or alerting.
func NewOpportunityService(
	detector *engine.Detector,
	ranker *engine.Ranker,
	interval time.Duration,
	store domain.OpportunityStore,
	bus domain.SignalBus,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *OpportunityService {
	return &OpportunityService{
		detector: detector,
		ranker:   ranker,
		interval: interval,
		store:    store,
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "opportunity_service")),
	}
}

// Run scans on the configured interval until ctx ends.
func (s *OpportunityService) Run(ctx context.Context) error {
	s.logger.Info("detection loop started", slog.Duration("interval", s.interval))
	defer s.logger.Info("detection loop stopped")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.ScanOnce(ctx, time.Now().UTC())
		}
	}
}

// ScanOnce runs one full scan cycle. Exposed so the loop is testable and a
// debug endpoint can trigger a scan on demand.
func (s *OpportunityService) ScanOnce(ctx context.Context, at time.Time) {
	ops := s.detector.Scan(at)
	ranked, alerts := s.ranker.Rank(ops, at)

	s.mu.Lock()
	s.latest = ranked
	s.mu.Unlock()

	if len(ranked) > 0 {
		s.logger.Info("scan complete",
			slog.Int("evaluated", len(ops)),
			slog.Int("feasible", len(ranked)),
			slog.Int("alerts", len(alerts)),
		)
	}

	for _, op := range alerts {
		s.emit(ctx, op)
	}
}

// Current returns the ranked feasible opportunities from the latest scan,
// narrowed to one symbol when symbol is non-nil. Ranking order is preserved.
func (s *OpportunityService) Current(symbol *domain.Symbol) []domain.Opportunity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if symbol == nil {
		return append([]domain.Opportunity(nil), s.latest...)
	}
	var out []domain.Opportunity
	for _, op := range s.latest {
		if op.Symbol == *symbol {
			out = append(out, op)
		}
	}
	return out
}

// Recent returns persisted opportunities, newest first.
func (s *OpportunityService) Recent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	if s.store == nil {
		return nil, fmt.Errorf("opportunity_service: no store configured: %w", domain.ErrNotFound)
	}
	opps, err := s.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: list recent: %w", err)
	}
	return opps, nil
}

// Replay reads the durable opportunity stream from lastID so a consumer can
// resume where it left off.
func (s *OpportunityService) Replay(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	if s.bus == nil {
		return nil, fmt.Errorf("opportunity_service: no bus configured: %w", domain.ErrNotFound)
	}
	msgs, err := s.bus.StreamRead(ctx, "opportunities", lastID, count)
	if err != nil {
		return nil, fmt.Errorf("opportunity_service: stream read: %w", err)
	}
	return msgs, nil
}

// emit records one newly alertable opportunity everywhere it goes: store,
// live channel, durable stream, operator alert. Each sink fails
// independently; a database hiccup must not silence the alert.
func (s *OpportunityService) emit(ctx context.Context, op domain.Opportunity) {
	if s.store != nil {
		if err := s.store.Insert(ctx, op); err != nil {
			s.logger.ErrorContext(ctx, "opportunity insert failed",
				slog.String("opp_id", op.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		evt, _ := json.Marshal(op)
		if err := s.bus.Publish(ctx, "opportunities", evt); err != nil {
			s.logger.WarnContext(ctx, "publish opportunity failed",
				slog.String("opp_id", op.ID),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, "opportunities", evt); err != nil {
			s.logger.WarnContext(ctx, "stream append failed",
				slog.String("opp_id", op.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.notifier != nil {
		title := fmt.Sprintf("Arbitrage: %s %s -> %s", op.Symbol, op.BuyVenue, op.SellVenue)
		msg := fmt.Sprintf(
			"Buy %s %s on %s @ %s, sell on %s @ %s\nNet profit %s (%s%%)\nFees: trading %s, withdrawal %s, deposit %s (%s)",
			op.Size, op.Symbol.Base, op.BuyVenue, op.AvgBuyPrice,
			op.SellVenue, op.AvgSellPrice,
			op.NetProfit, op.NetProfitRate.Mul(hundred),
			op.TradingFees, op.WithdrawalFee, op.DepositFee, op.Network,
		)
		if err := s.notifier.Notify(ctx, "opportunity_found", title, msg); err != nil {
			s.logger.WarnContext(ctx, "notify failed",
				slog.String("opp_id", op.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("opportunity emitted",
		slog.String("opp_id", op.ID),
		slog.String("symbol", op.Symbol.String()),
		slog.String("buy_venue", op.BuyVenue),
		slog.String("sell_venue", op.SellVenue),
		slog.String("net_profit", op.NetProfit.String()),
	)
}
