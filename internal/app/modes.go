package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/quantfeed/arbscope/internal/config"
	"github.com/quantfeed/arbscope/internal/domain"
	"github.com/quantfeed/arbscope/internal/engine"
	"github.com/quantfeed/arbscope/internal/feed"
	"github.com/quantfeed/arbscope/internal/server"
	"github.com/quantfeed/arbscope/internal/server/handler"
	"github.com/quantfeed/arbscope/internal/server/ws"
	"github.com/quantfeed/arbscope/internal/service"
)

// EngineMode runs the full detection pipeline: venue feeds, quote
// normalization, the scan loop, and tick persistence, plus the HTTP server
// when enabled.
func (a *App) EngineMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting engine mode")

	g, ctx := errgroup.WithContext(ctx)

	quoteSvc, oppSvc := a.startPipeline(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, quoteSvc, oppSvc)
	}

	return g.Wait()
}

// MonitorMode runs only the query surface: the HTTP API and the WebSocket
// hub bridging Redis events to browser clients. No feeds are started; quote
// and opportunity data come from the signal bus and the stores.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	quoteSvc := service.NewQuoteService(deps.Normalizer, deps.QuoteCache, deps.SignalBus, nil, a.logger)
	oppSvc := a.buildOpportunityService(deps)

	a.startHTTPServer(ctx, g, deps, quoteSvc, oppSvc)

	return g.Wait()
}

// ArchiveMode runs a single archive pass: export rows older than the
// retention cutoff to object storage, then prune them from Postgres. When a
// lock manager is available the pass is guarded so concurrent runs from
// multiple replicas cannot double-archive.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")
	return a.runArchive(ctx, deps)
}

// FullMode runs everything: the detection pipeline, the HTTP server, and a
// daily archive sweep when object storage is configured.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	quoteSvc, oppSvc := a.startPipeline(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, quoteSvc, oppSvc)
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
					if err := a.runArchive(ctx, deps); err != nil {
						a.logger.WarnContext(ctx, "archive sweep failed",
							slog.String("error", err.Error()),
						)
					}
				}
			}
		})
	}

	return g.Wait()
}

// startPipeline launches the feeds, the tick recorder, and the scan loop on
// the group, returning the services the HTTP layer needs.
func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies) (*service.QuoteService, *service.OpportunityService) {
	var recorder *service.TickRecorder
	if deps.TickStore != nil {
		recorder = service.NewTickRecorder(
			deps.TickStore,
			a.cfg.Engine.TickBatchSize,
			a.cfg.Engine.TickFlushInterval.Duration,
			a.logger,
		)
		g.Go(func() error {
			return recorder.Run(ctx)
		})
	}

	quoteSvc := service.NewQuoteService(deps.Normalizer, deps.QuoteCache, deps.SignalBus, recorder, a.logger)

	manager := feed.NewManager(a.buildFeeds(), a.logger)
	g.Go(func() error {
		return manager.Run(ctx, quoteSvc)
	})

	oppSvc := a.buildOpportunityService(deps)
	g.Go(func() error {
		return oppSvc.Run(ctx)
	})

	return quoteSvc, oppSvc
}

// buildOpportunityService assembles the detector, ranker, and scan service.
// Config decimals were validated at startup, so parse failures are
// programming errors and RequireFromString is acceptable here.
func (a *App) buildOpportunityService(deps *Dependencies) *service.OpportunityService {
	tradeSize := decimal.RequireFromString(a.cfg.Engine.TradeSize)
	minRate := decimal.RequireFromString(a.cfg.Engine.MinNetProfitRate)

	calc := engine.NewCalculator(deps.FeeModel, tradeSize)
	detector := engine.NewDetector(deps.QuoteCache, calc, a.logger)
	ranker := engine.NewRanker(minRate, a.cfg.Engine.DedupTTL.Duration)

	return service.NewOpportunityService(
		detector,
		ranker,
		a.cfg.Engine.ScanInterval.Duration,
		deps.OpportunityStore,
		deps.SignalBus,
		deps.Notifier,
		a.logger,
	)
}

// buildFeeds constructs one Feed per configured venue.
func (a *App) buildFeeds() []feed.Feed {
	feeds := make([]feed.Feed, 0, len(a.cfg.Venues))
	for _, v := range a.cfg.Venues {
		switch strings.ToLower(v.Feed) {
		case "ws":
			feeds = append(feeds, feed.NewWSFeed(v.Name, v.WsURL, v.Symbols, a.logger))
		case "sim":
			feeds = append(feeds, feed.NewSimFeed(v.Name, v.Symbols, simParams(v.Sim), a.logger))
		}
	}
	return feeds
}

func simParams(sc config.SimConfig) feed.SimParams {
	return feed.SimParams{
		StartPrice: sc.StartPrice,
		Volatility: sc.Volatility,
		Spread:     sc.Spread,
		Levels:     sc.Levels,
		Interval:   sc.Interval.Duration,
		Seed:       sc.Seed,
	}
}

// runArchive performs one export-then-prune pass over both tables.
func (a *App) runArchive(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive requires postgres and s3 to be enabled")
	}

	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, "archive:run", 10*time.Minute)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				a.logger.InfoContext(ctx, "archive already running elsewhere, skipping")
				return nil
			}
			return fmt.Errorf("app: archive lock: %w", err)
		}
		defer unlock()
	}

	cutoff := retentionCutoff(a.cfg, time.Now().UTC())

	ticks, err := deps.Archiver.ArchiveTicks(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive ticks: %w", err)
	}
	opps, err := deps.Archiver.ArchiveOpportunities(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("app: archive opportunities: %w", err)
	}

	a.logger.InfoContext(ctx, "archive pass complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("ticks", ticks),
		slog.Int64("opportunities", opps),
	)
	return nil
}

// startHTTPServer registers the API handlers, attaches the WebSocket hub when
// a signal bus is available, and runs the server on the group.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	quoteSvc *service.QuoteService,
	oppSvc *service.OpportunityService,
) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	handlers := server.Handlers{
		Health:        handler.NewHealthHandler(a.logger),
		Quotes:        handler.NewQuoteHandler(quoteSvc, a.logger),
		Opportunities: handler.NewOpportunityHandler(oppSvc, a.logger),
		Venues:        handler.NewVenueHandler(quoteSvc, a.logger),
		Fees:          handler.NewFeeHandler(deps.FeeModel, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
