package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBSCOPE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBSCOPE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file. Per-venue lists and the fee schedule are TOML-only.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDuration(&cfg.Engine.ScanInterval, "ARBSCOPE_ENGINE_SCAN_INTERVAL")
	setDuration(&cfg.Engine.StaleAfter, "ARBSCOPE_ENGINE_STALE_AFTER")
	setStr(&cfg.Engine.TradeSize, "ARBSCOPE_ENGINE_TRADE_SIZE")
	setStr(&cfg.Engine.MinNetProfitRate, "ARBSCOPE_ENGINE_MIN_NET_PROFIT_RATE")
	setDuration(&cfg.Engine.DedupTTL, "ARBSCOPE_ENGINE_DEDUP_TTL")
	setInt(&cfg.Engine.MaxDepth, "ARBSCOPE_ENGINE_MAX_DEPTH")
	setInt(&cfg.Engine.TickBatchSize, "ARBSCOPE_ENGINE_TICK_BATCH_SIZE")
	setDuration(&cfg.Engine.TickFlushInterval, "ARBSCOPE_ENGINE_TICK_FLUSH_INTERVAL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ARBSCOPE_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ARBSCOPE_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBSCOPE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBSCOPE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBSCOPE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBSCOPE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBSCOPE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBSCOPE_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBSCOPE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBSCOPE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBSCOPE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "ARBSCOPE_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "ARBSCOPE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBSCOPE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBSCOPE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBSCOPE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBSCOPE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBSCOPE_REDIS_TLS_ENABLED")
	setInt64(&cfg.Redis.StreamMaxLen, "ARBSCOPE_REDIS_STREAM_MAX_LEN")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ARBSCOPE_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ARBSCOPE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBSCOPE_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBSCOPE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBSCOPE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBSCOPE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBSCOPE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBSCOPE_S3_FORCE_PATH_STYLE")
	setInt(&cfg.S3.RetentionDays, "ARBSCOPE_S3_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBSCOPE_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBSCOPE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "ARBSCOPE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBSCOPE_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "ARBSCOPE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "ARBSCOPE_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBSCOPE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBSCOPE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBSCOPE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBSCOPE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBSCOPE_MODE")
	setStr(&cfg.LogLevel, "ARBSCOPE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
