// Package service coordinates the domain layers: quote ingestion into the
// cache, the detection loop, and tick recording. Services own no algorithms
// themselves; they wire feeds, the engine, stores and the signal bus.
package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/quantfeed/arbscope/internal/domain"
	"github.com/quantfeed/arbscope/internal/normalizer"
	"github.com/quantfeed/arbscope/internal/quotecache"
)

// QuoteService is the feed handler: it normalizes raw snapshots, updates the
// quote cache, records ticks, and publishes quote events on the signal bus.
type QuoteService struct {
	norm     *normalizer.Normalizer
	cache    *quotecache.Cache
	bus      domain.SignalBus
	recorder *TickRecorder
	logger   *slog.Logger
}

// NewQuoteService creates a QuoteService. bus and recorder may be nil when
// event publication or persistence is disabled.
func NewQuoteService(
	norm *normalizer.Normalizer,
	cache *quotecache.Cache,
	bus domain.SignalBus,
	recorder *TickRecorder,
	logger *slog.Logger,
) *QuoteService {
	return &QuoteService{
		norm:     norm,
		cache:    cache,
		bus:      bus,
		recorder: recorder,
		logger:   logger.With(slog.String("component", "quote_service")),
	}
}

// OnSnapshot processes one raw snapshot end to end. A snapshot that fails
// normalization or arrives out of order is dropped whole; the cache keeps its
// previous quote for the pair.
func (s *QuoteService) OnSnapshot(ctx context.Context, snap domain.RawSnapshot, receivedAt time.Time) {
	quote, err := s.norm.Normalize(snap, receivedAt)
	if err != nil {
		s.logger.DebugContext(ctx, "snapshot rejected",
			slog.String("venue", snap.Venue),
			slog.String("symbol", snap.Symbol),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.cache.Upsert(quote); err != nil {
		s.logger.DebugContext(ctx, "quote not cached",
			slog.String("venue", quote.Venue),
			slog.String("symbol", quote.Symbol.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	if s.recorder != nil {
		s.recorder.Record(tickFromQuote(quote))
	}
	s.publishQuote(ctx, quote)
}

// OnDisconnected marks the venue down so its quotes leave detection.
func (s *QuoteService) OnDisconnected(venue string) {
	s.cache.MarkDisconnected(venue)
	s.publishStatus(venue, domain.VenueDisconnected)
	s.logger.Warn("venue disconnected", slog.String("venue", venue))
}

// OnConnected records venue connectivity. Quotes become eligible again only
// as fresh snapshots arrive.
func (s *QuoteService) OnConnected(venue string) {
	s.cache.MarkConnected(venue)
	s.publishStatus(venue, domain.VenueConnected)
	s.logger.Info("venue connected", slog.String("venue", venue))
}

// Quotes returns the full cache view for a symbol, including stale and
// ineligible entries flagged as such.
func (s *QuoteService) Quotes(symbol domain.Symbol) []domain.QuoteStatus {
	return s.cache.All(symbol)
}

// Symbols returns every symbol with cached data.
func (s *QuoteService) Symbols() []domain.Symbol {
	return s.cache.Symbols()
}

// VenueStatuses returns last known connectivity per venue.
func (s *QuoteService) VenueStatuses() map[string]domain.VenueStatus {
	return s.cache.Venues()
}

func (s *QuoteService) publishQuote(ctx context.Context, q domain.Quote) {
	if s.bus == nil {
		return
	}
	bid, _ := q.BestBid()
	ask, _ := q.BestAsk()
	evt, _ := json.Marshal(map[string]any{
		"event":     "quote",
		"venue":     q.Venue,
		"symbol":    q.Symbol.String(),
		"best_bid":  bid.Price,
		"best_ask":  ask.Price,
		"timestamp": q.Timestamp.Format(time.RFC3339Nano),
	})
	if err := s.bus.Publish(ctx, "quotes", evt); err != nil {
		s.logger.WarnContext(ctx, "publish quote event failed",
			slog.String("venue", q.Venue),
			slog.String("error", err.Error()),
		)
	}
}

func (s *QuoteService) publishStatus(venue string, status domain.VenueStatus) {
	if s.bus == nil {
		return
	}
	evt, _ := json.Marshal(map[string]any{
		"event":  "venue_status",
		"venue":  venue,
		"status": string(status),
	})
	if err := s.bus.Publish(context.Background(), "status", evt); err != nil {
		s.logger.Warn("publish status event failed",
			slog.String("venue", venue),
			slog.String("error", err.Error()),
		)
	}
}

func tickFromQuote(q domain.Quote) domain.Tick {
	t := domain.Tick{
		Timestamp: q.ReceivedAt,
		Venue:     q.Venue,
		Symbol:    q.Symbol,
	}
	if bid, ok := q.BestBid(); ok {
		t.Bid, t.BidSize = bid.Price, bid.Size
	}
	if ask, ok := q.BestAsk(); ok {
		t.Ask, t.AskSize = ask.Price, ask.Size
	}
	return t
}
