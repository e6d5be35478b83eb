package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/quantfeed/arbscope/internal/blob/s3"
	"github.com/quantfeed/arbscope/internal/cache/redis"
	"github.com/quantfeed/arbscope/internal/config"
	"github.com/quantfeed/arbscope/internal/domain"
	"github.com/quantfeed/arbscope/internal/feemodel"
	"github.com/quantfeed/arbscope/internal/normalizer"
	"github.com/quantfeed/arbscope/internal/notify"
	"github.com/quantfeed/arbscope/internal/quotecache"
	"github.com/quantfeed/arbscope/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency the application modes
// need to operate. It is constructed by Wire and torn down by the returned
// cleanup function. Optional backends (Postgres, Redis, S3) leave their
// fields nil when disabled; modes degrade accordingly.
type Dependencies struct {
	// In-process core
	FeeModel   *feemodel.Model
	QuoteCache *quotecache.Cache
	Normalizer *normalizer.Normalizer

	// Stores (nil unless Postgres is enabled)
	TickStore        domain.TickStore
	OpportunityStore domain.OpportunityStore

	// Redis-backed (nil unless Redis is enabled)
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// Blob storage (nil unless S3 is enabled)
	BlobWriter domain.BlobWriter
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- In-process core ---
	fees, err := cfg.ToFeeModel()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: fee model: %w", err)
	}
	deps.FeeModel = fees

	symbolMaps, err := cfg.ToSymbolMaps()
	if err != nil {
		return nil, nil, fmt.Errorf("wire: symbol maps: %w", err)
	}
	deps.Normalizer = normalizer.New(symbolMaps, cfg.Engine.MaxDepth)
	deps.QuoteCache = quotecache.New(cfg.Engine.StaleAfter.Duration)

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TickStore = postgres.NewTickStore(pool)
		deps.OpportunityStore = postgres.NewOpportunityStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		// Archiving needs both the export target and the source stores.
		if deps.TickStore != nil && deps.OpportunityStore != nil {
			deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.TickStore, deps.OpportunityStore, logger)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// retentionCutoff returns the archive cutoff for the configured retention.
func retentionCutoff(cfg *config.Config, now time.Time) time.Time {
	return now.AddDate(0, 0, -cfg.S3.RetentionDays)
}
