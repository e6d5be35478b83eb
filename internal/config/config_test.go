package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfeed/arbscope/internal/domain"
)

// validConfig returns a Config that passes Validate in full mode.
func validConfig() Config {
	cfg := Defaults()
	cfg.Venues = []VenueConfig{
		{
			Name:     "alpha",
			Feed:     "sim",
			Symbols:  []string{"BTC/USDT", "ETH/USDT"},
			MakerFee: "0.001",
			TakerFee: "0.001",
		},
		{
			Name:      "beta",
			Feed:      "ws",
			WsURL:     "wss://beta.example.com/stream",
			Symbols:   []string{"BTC-USDT"},
			SymbolMap: map[string]string{"XBTUSDT": "BTC/USDT"},
			MakerFee:  "0.0008",
			TakerFee:  "0.0012",
		},
	}
	cfg.Fees.Transfers = []TransferFeeConfig{
		{
			Venue:           "alpha",
			Asset:           "BTC",
			Network:         "BTC",
			WithdrawFixed:   "0.0005",
			WithdrawMinimum: "0.001",
		},
		{
			Venue:   "beta",
			Asset:   "BTC",
			Network: "BTC",
		},
	}
	return cfg
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "turbo"
	cfg.Engine.TradeSize = "lots"
	cfg.Venues[1].WsURL = ""
	cfg.Venues[0].Symbols = append(cfg.Venues[0].Symbols, "BTCUSDT/")

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want combined error")
	}
	for _, want := range []string{
		`unknown mode "turbo"`,
		`trade_size "lots"`,
		`ws_url is required`,
		`symbol "BTCUSDT/"`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestValidateModeRequirements(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "engine mode needs two venues",
			mutate: func(c *Config) { c.Mode = "engine"; c.Venues = c.Venues[:1] },
			want:   "at least 2 venues",
		},
		{
			name:   "archive mode needs postgres",
			mutate: func(c *Config) { c.Mode = "archive"; c.S3.Enabled = true },
			want:   "requires postgres.enabled",
		},
		{
			name:   "rate limit needs redis",
			mutate: func(c *Config) { c.Server.RateLimit = 100 },
			want:   "rate_limit requires redis.enabled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	data := `
mode = "monitor"
log_level = "debug"

[engine]
scan_interval = "2s"
trade_size = "5"

[[venues]]
name = "alpha"
feed = "sim"
symbols = ["BTC/USDT"]
taker_fee = "0.001"

[redis]
enabled = true
addr = "redis.internal:6379"
stream_max_len = 5000
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ARBSCOPE_REDIS_PASSWORD", "hunter2")
	t.Setenv("ARBSCOPE_ENGINE_SCAN_INTERVAL", "500ms")
	t.Setenv("ARBSCOPE_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Mode != "monitor" {
		t.Errorf("Mode = %q, want monitor", cfg.Mode)
	}
	if cfg.Engine.TradeSize != "5" {
		t.Errorf("TradeSize = %q, want 5", cfg.Engine.TradeSize)
	}
	// Env beats file.
	if got := cfg.Engine.ScanInterval.Duration; got != 500*time.Millisecond {
		t.Errorf("ScanInterval = %v, want 500ms", got)
	}
	if cfg.Redis.Password != "hunter2" {
		t.Errorf("Redis.Password = %q, want hunter2", cfg.Redis.Password)
	}
	if cfg.Redis.StreamMaxLen != 5000 {
		t.Errorf("StreamMaxLen = %d, want 5000", cfg.Redis.StreamMaxLen)
	}
	want := []string{"https://a.example", "https://b.example"}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != want[0] || cfg.Server.CORSOrigins[1] != want[1] {
		t.Errorf("CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
	}
	// File value untouched by defaults.
	if cfg.Venues[0].Name != "alpha" {
		t.Errorf("Venues[0].Name = %q, want alpha", cfg.Venues[0].Name)
	}
	// Defaults survive where neither file nor env set a value.
	if cfg.Engine.MaxDepth != 20 {
		t.Errorf("MaxDepth = %d, want default 20", cfg.Engine.MaxDepth)
	}
}

func TestToFeeModel(t *testing.T) {
	cfg := validConfig()
	model, err := cfg.ToFeeModel()
	if err != nil {
		t.Fatalf("ToFeeModel() error: %v", err)
	}

	taker, err := model.TradingFee("beta", domain.FeeRoleTaker)
	if err != nil {
		t.Fatalf("TradingFee(beta) error: %v", err)
	}
	if want := decimal.RequireFromString("0.0012"); !taker.Equal(want) {
		t.Errorf("beta taker fee = %s, want %s", taker, want)
	}

	route, err := model.Route("alpha", "beta", "BTC")
	if err != nil {
		t.Fatalf("Route(alpha, beta, BTC) error: %v", err)
	}
	if route.Network != "BTC" {
		t.Errorf("route network = %q, want BTC", route.Network)
	}
	if want := decimal.RequireFromString("0.0005"); !route.Withdrawal.Fixed.Equal(want) {
		t.Errorf("withdrawal fixed = %s, want %s", route.Withdrawal.Fixed, want)
	}

	// No row for ETH anywhere: missing data, not zero.
	if _, err := model.Route("alpha", "beta", "ETH"); err == nil {
		t.Error("Route(alpha, beta, ETH) = nil error, want ErrMissingFeeData")
	}
}

func TestToSymbolMaps(t *testing.T) {
	cfg := validConfig()
	maps, err := cfg.ToSymbolMaps()
	if err != nil {
		t.Fatalf("ToSymbolMaps() error: %v", err)
	}

	if _, ok := maps["alpha"]; ok {
		t.Error("alpha has no symbol_map, want no entry")
	}
	sym, ok := maps["beta"]["XBTUSDT"]
	if !ok {
		t.Fatal("beta map missing XBTUSDT")
	}
	if sym.Base != "BTC" || sym.Quote != "USDT" {
		t.Errorf("XBTUSDT = %s/%s, want BTC/USDT", sym.Base, sym.Quote)
	}
}

func TestRedactedConfigHidesSecrets(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pg-secret"
	cfg.Server.APIKey = "api-secret"
	cfg.Notify.TelegramToken = "tg-secret"

	red := RedactedConfig(&cfg)

	if red.Postgres.Password != "***" || red.Server.APIKey != "***" || red.Notify.TelegramToken != "***" {
		t.Errorf("secrets not redacted: %q %q %q",
			red.Postgres.Password, red.Server.APIKey, red.Notify.TelegramToken)
	}
	// Original untouched.
	if cfg.Postgres.Password != "pg-secret" {
		t.Errorf("original mutated: %q", cfg.Postgres.Password)
	}
	// Mutating the copy's slices must not leak back.
	red.Venues[0].Symbols[0] = "XXX/YYY"
	if cfg.Venues[0].Symbols[0] != "BTC/USDT" {
		t.Error("redacted copy shares Symbols slice with original")
	}
}
