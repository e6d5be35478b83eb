// Package feed ingests orderbook data from venues. Each venue runs as an
// independent feed; one venue stalling or dying never blocks another. Feeds
// emit venue-shaped RawSnapshots and connectivity transitions to a Handler
// and know nothing about normalization or detection.
package feed

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quantfeed/arbscope/internal/domain"
)

// Handler receives feed output. OnSnapshot is called on the feed's goroutine;
// implementations must be safe for concurrent calls from multiple feeds.
type Handler interface {
	OnSnapshot(ctx context.Context, snap domain.RawSnapshot, receivedAt time.Time)
	OnDisconnected(venue string)
	OnConnected(venue string)
}

// Feed streams orderbook snapshots for one venue until its context ends.
type Feed interface {
	Venue() string
	Run(ctx context.Context, h Handler) error
}

// Manager runs a set of venue feeds concurrently. A feed returning an error
// is logged and its venue reported disconnected; the remaining feeds keep
// running. Only context cancellation stops the manager.
type Manager struct {
	feeds  []Feed
	logger *slog.Logger
}

// NewManager creates a Manager over the given feeds.
func NewManager(feeds []Feed, logger *slog.Logger) *Manager {
	return &Manager{feeds: feeds, logger: logger.With(slog.String("component", "feed_manager"))}
}

// Run starts every feed and blocks until ctx is cancelled and all feeds have
// returned.
func (m *Manager) Run(ctx context.Context, h Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, f := range m.feeds {
		g.Go(func() error {
			err := f.Run(ctx, h)
			if err != nil && ctx.Err() == nil {
				// Isolate the failure: report the venue down but do not
				// cancel the group, other venues are still producing.
				m.logger.Error("feed stopped",
					slog.String("venue", f.Venue()),
					slog.String("error", err.Error()))
				h.OnDisconnected(f.Venue())
				return nil
			}
			return nil
		})
	}
	return g.Wait()
}
