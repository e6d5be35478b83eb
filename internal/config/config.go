// Package config defines the top-level configuration for the arbitrage
// engine and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/arbscope/internal/domain"
	"github.com/quantfeed/arbscope/internal/feemodel"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBSCOPE_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Venues   []VenueConfig  `toml:"venues"`
	Fees     FeesConfig     `toml:"fees"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds detection loop parameters. Monetary and rate values are
// decimal strings so they survive TOML round-trips without float drift.
type EngineConfig struct {
	// ScanInterval is how often the detector sweeps the quote cache.
	ScanInterval duration `toml:"scan_interval"`
	// StaleAfter is the age past which a cached quote is ignored.
	StaleAfter duration `toml:"stale_after"`
	// TradeSize is the target fill size in base asset units, e.g. "10".
	TradeSize string `toml:"trade_size"`
	// MinNetProfitRate is the feasibility threshold, e.g. "0.001" for 0.1%.
	MinNetProfitRate string `toml:"min_net_profit_rate"`
	// DedupTTL is how long a repeated opportunity is suppressed from alerts.
	DedupTTL duration `toml:"dedup_ttl"`
	// MaxDepth caps the number of book levels kept per side.
	MaxDepth int `toml:"max_depth"`

	// Tick persistence batching (only used when Postgres is enabled).
	TickBatchSize     int      `toml:"tick_batch_size"`
	TickFlushInterval duration `toml:"tick_flush_interval"`
}

// VenueConfig describes one exchange feed: where quotes come from, which
// symbols to track, and the venue's trading fee tier.
type VenueConfig struct {
	Name string `toml:"name"`
	// Feed selects the source: "ws" for a live WebSocket feed, "sim" for the
	// built-in random-walk simulator.
	Feed    string   `toml:"feed"`
	WsURL   string   `toml:"ws_url"`
	Symbols []string `toml:"symbols"`
	// SymbolMap translates venue-native tickers to canonical "BASE/QUOTE"
	// form, e.g. XBTUSD = "BTC/USD". Unlisted native symbols are rejected
	// when a map is present.
	SymbolMap map[string]string `toml:"symbol_map"`

	MakerFee string `toml:"maker_fee"`
	TakerFee string `toml:"taker_fee"`

	Sim SimConfig `toml:"sim"`
}

// SimConfig tunes the simulated feed for a venue.
type SimConfig struct {
	StartPrice float64  `toml:"start_price"`
	Volatility float64  `toml:"volatility"`
	Spread     float64  `toml:"spread"`
	Levels     int      `toml:"levels"`
	Interval   duration `toml:"interval"`
	Seed       int64    `toml:"seed"`
}

// FeesConfig holds the transfer fee schedule.
type FeesConfig struct {
	Transfers []TransferFeeConfig `toml:"transfers"`
}

// TransferFeeConfig is one (venue, asset, network) row of the transfer fee
// schedule. Fee values are decimal strings denominated in the asset.
type TransferFeeConfig struct {
	Venue   string `toml:"venue"`
	Asset   string `toml:"asset"`
	Network string `toml:"network"`

	WithdrawFixed    string `toml:"withdraw_fixed"`
	WithdrawFraction string `toml:"withdraw_fraction"`
	WithdrawMinimum  string `toml:"withdraw_minimum"`

	DepositFixed    string `toml:"deposit_fixed"`
	DepositFraction string `toml:"deposit_fraction"`
	DepositMinimum  string `toml:"deposit_minimum"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled      bool   `toml:"enabled"`
	Addr         string `toml:"addr"`
	Password     string `toml:"password"`
	DB           int    `toml:"db"`
	PoolSize     int    `toml:"pool_size"`
	MaxRetries   int    `toml:"max_retries"`
	TLSEnabled   bool   `toml:"tls_enabled"`
	StreamMaxLen int64  `toml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters for archiving.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	// RetentionDays is how long rows stay in Postgres before being exported
	// to the archive and pruned.
	RetentionDays int `toml:"retention_days"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit is requests per client per RateWindow; zero disables
	// limiting. Requires Redis.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			ScanInterval:      duration{1 * time.Second},
			StaleAfter:        duration{5 * time.Second},
			TradeSize:         "1",
			MinNetProfitRate:  "0.001",
			DedupTTL:          duration{5 * time.Minute},
			MaxDepth:          20,
			TickBatchSize:     500,
			TickFlushInterval: duration{5 * time.Second},
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "arbscope",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			TLSEnabled:   false,
			StreamMaxLen: 10_000,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbscope-data",
			UseSSL:         false,
			ForcePathStyle: true,
			RetentionDays:  90,
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   0,
			RateWindow:  duration{1 * time.Second},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity_found", "error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine":  true,
	"monitor": true,
	"archive": true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validFeeds enumerates the accepted values for VenueConfig.Feed.
var validFeeds = map[string]bool{
	"ws":  true,
	"sim": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, monitor, archive, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.ScanInterval.Duration <= 0 {
		errs = append(errs, "engine: scan_interval must be > 0")
	}
	if c.Engine.StaleAfter.Duration <= 0 {
		errs = append(errs, "engine: stale_after must be > 0")
	}
	if size, err := decimal.NewFromString(c.Engine.TradeSize); err != nil {
		errs = append(errs, fmt.Sprintf("engine: trade_size %q is not a decimal", c.Engine.TradeSize))
	} else if size.Sign() <= 0 {
		errs = append(errs, "engine: trade_size must be > 0")
	}
	if rate, err := decimal.NewFromString(c.Engine.MinNetProfitRate); err != nil {
		errs = append(errs, fmt.Sprintf("engine: min_net_profit_rate %q is not a decimal", c.Engine.MinNetProfitRate))
	} else if rate.Sign() < 0 {
		errs = append(errs, "engine: min_net_profit_rate must be >= 0")
	}
	if c.Engine.MaxDepth < 1 {
		errs = append(errs, "engine: max_depth must be >= 1")
	}
	if c.Engine.TickBatchSize < 1 {
		errs = append(errs, "engine: tick_batch_size must be >= 1")
	}

	// Venues
	mode := strings.ToLower(c.Mode)
	needsFeeds := mode == "engine" || mode == "full"
	if needsFeeds && len(c.Venues) < 2 {
		errs = append(errs, fmt.Sprintf("venues: at least 2 venues are required for mode %s, got %d", c.Mode, len(c.Venues)))
	}
	seen := make(map[string]bool, len(c.Venues))
	for i, v := range c.Venues {
		tag := fmt.Sprintf("venues[%d]", i)
		name := strings.ToLower(strings.TrimSpace(v.Name))
		if name == "" {
			errs = append(errs, tag+": name must not be empty")
		} else if seen[name] {
			errs = append(errs, fmt.Sprintf("%s: duplicate venue name %q", tag, v.Name))
		}
		seen[name] = true

		if !validFeeds[strings.ToLower(v.Feed)] {
			errs = append(errs, fmt.Sprintf("%s: unknown feed %q (valid: ws, sim)", tag, v.Feed))
		}
		if strings.ToLower(v.Feed) == "ws" && v.WsURL == "" {
			errs = append(errs, tag+": ws_url is required for feed \"ws\"")
		}
		if len(v.Symbols) == 0 {
			errs = append(errs, tag+": symbols must not be empty")
		}
		for _, s := range v.Symbols {
			if _, err := domain.ParseSymbol(canonicalize(s)); err != nil {
				errs = append(errs, fmt.Sprintf("%s: symbol %q is not BASE/QUOTE", tag, s))
			}
		}
		for native, canonical := range v.SymbolMap {
			if _, err := domain.ParseSymbol(canonical); err != nil {
				errs = append(errs, fmt.Sprintf("%s: symbol_map[%q] = %q is not BASE/QUOTE", tag, native, canonical))
			}
		}
		if _, err := parseFraction(v.MakerFee); err != nil {
			errs = append(errs, fmt.Sprintf("%s: maker_fee: %v", tag, err))
		}
		if _, err := parseFraction(v.TakerFee); err != nil {
			errs = append(errs, fmt.Sprintf("%s: taker_fee: %v", tag, err))
		}
	}

	// Transfer fee rows
	for i, t := range c.Fees.Transfers {
		tag := fmt.Sprintf("fees.transfers[%d]", i)
		if strings.TrimSpace(t.Venue) == "" {
			errs = append(errs, tag+": venue must not be empty")
		}
		if strings.TrimSpace(t.Asset) == "" {
			errs = append(errs, tag+": asset must not be empty")
		}
		if strings.TrimSpace(t.Network) == "" {
			errs = append(errs, tag+": network must not be empty")
		}
		for _, f := range []struct{ name, val string }{
			{"withdraw_fixed", t.WithdrawFixed},
			{"withdraw_fraction", t.WithdrawFraction},
			{"withdraw_minimum", t.WithdrawMinimum},
			{"deposit_fixed", t.DepositFixed},
			{"deposit_fraction", t.DepositFraction},
			{"deposit_minimum", t.DepositMinimum},
		} {
			if _, err := parseFraction(f.val); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %s: %v", tag, f.name, err))
			}
		}
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.RetentionDays < 1 {
			errs = append(errs, "s3: retention_days must be >= 1")
		}
	}

	// Mode dependencies
	if mode == "archive" {
		if !c.Postgres.Enabled {
			errs = append(errs, "mode archive requires postgres.enabled = true")
		}
		if !c.S3.Enabled {
			errs = append(errs, "mode archive requires s3.enabled = true")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && !c.Redis.Enabled {
			errs = append(errs, "server: rate_limit requires redis.enabled = true")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ToFeeModel builds the fee schedule from the venue trading fees and the
// transfer rows. Call only after Validate.
func (c *Config) ToFeeModel() (*feemodel.Model, error) {
	trading := make(map[string]feemodel.VenueFees, len(c.Venues))
	for _, v := range c.Venues {
		maker, err := parseFraction(v.MakerFee)
		if err != nil {
			return nil, fmt.Errorf("config: venue %s maker_fee: %w", v.Name, err)
		}
		taker, err := parseFraction(v.TakerFee)
		if err != nil {
			return nil, fmt.Errorf("config: venue %s taker_fee: %w", v.Name, err)
		}
		trading[v.Name] = feemodel.VenueFees{Maker: maker, Taker: taker}
	}

	entries := make([]feemodel.TransferEntry, 0, len(c.Fees.Transfers))
	for _, t := range c.Fees.Transfers {
		withdraw, err := parseTransferFee(t.WithdrawFixed, t.WithdrawFraction, t.WithdrawMinimum)
		if err != nil {
			return nil, fmt.Errorf("config: transfer %s/%s/%s withdraw: %w", t.Venue, t.Asset, t.Network, err)
		}
		deposit, err := parseTransferFee(t.DepositFixed, t.DepositFraction, t.DepositMinimum)
		if err != nil {
			return nil, fmt.Errorf("config: transfer %s/%s/%s deposit: %w", t.Venue, t.Asset, t.Network, err)
		}
		entries = append(entries, feemodel.TransferEntry{
			Venue:    t.Venue,
			Asset:    t.Asset,
			Network:  t.Network,
			Withdraw: withdraw,
			Deposit:  deposit,
		})
	}

	return feemodel.New(trading, entries), nil
}

// ToSymbolMaps builds the per-venue native-to-canonical symbol maps for the
// normalizer. Venues without an explicit symbol_map get no entry and fall
// back to canonical parsing.
func (c *Config) ToSymbolMaps() (map[string]map[string]domain.Symbol, error) {
	out := make(map[string]map[string]domain.Symbol)
	for _, v := range c.Venues {
		if len(v.SymbolMap) == 0 {
			continue
		}
		m := make(map[string]domain.Symbol, len(v.SymbolMap))
		for native, canonical := range v.SymbolMap {
			sym, err := domain.ParseSymbol(canonical)
			if err != nil {
				return nil, fmt.Errorf("config: venue %s symbol_map[%q]: %w", v.Name, native, err)
			}
			m[strings.ToUpper(native)] = sym
		}
		out[strings.ToLower(v.Name)] = m
	}
	return out, nil
}

// parseFraction parses a non-negative decimal string. Empty means zero, so
// venues with free deposits need not spell out every field.
func parseFraction(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%q is not a decimal", s)
	}
	if d.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("%q must not be negative", s)
	}
	return d, nil
}

func parseTransferFee(fixed, fraction, minimum string) (domain.TransferFee, error) {
	fx, err := parseFraction(fixed)
	if err != nil {
		return domain.TransferFee{}, err
	}
	fr, err := parseFraction(fraction)
	if err != nil {
		return domain.TransferFee{}, err
	}
	min, err := parseFraction(minimum)
	if err != nil {
		return domain.TransferFee{}, err
	}
	return domain.TransferFee{Fixed: fx, Fraction: fr, Minimum: min}, nil
}

// canonicalize turns "BTC-USDT" into "BTC/USDT" so operators can use either
// separator in venue symbol lists.
func canonicalize(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "-", "/")
}
