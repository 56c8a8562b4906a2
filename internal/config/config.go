// Package config defines the top-level configuration for the momentum bot
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from an
// optional TOML file and then overridden by environment variables.
type Config struct {
	Binance  BinanceConfig  `toml:"binance"`
	Trading  TradingConfig  `toml:"trading"`
	Summary  SummaryConfig  `toml:"summary"`
	Provider ProviderConfig `toml:"provider"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	LogLevel string         `toml:"log_level"`
}

// BinanceConfig holds the exchange endpoint and API credentials.
type BinanceConfig struct {
	BaseURL      string `toml:"base_url"`
	APIKey       string `toml:"api_key"`
	APISecret    string `toml:"api_secret"`
	RecvWindowMs int    `toml:"recv_window_ms"`
}

// TradingConfig holds the decision-engine parameters.
type TradingConfig struct {
	// Mode is "live" (real orders) or "paper" (simulated fills on live data).
	Mode            string   `toml:"mode"`
	QuoteAsset      string   `toml:"quote_asset"`
	CapitalFraction float64  `toml:"capital_fraction"`
	MinChangePct    float64  `toml:"min_change_pct"`
	MinQuoteVolume  float64  `toml:"min_quote_volume"`
	Denylist        []string `toml:"denylist"`
	TakeProfit      float64  `toml:"take_profit"`
	StopLoss        float64  `toml:"stop_loss"`
	MaxHold         duration `toml:"max_hold"`
	Interval        duration `toml:"interval"`
	PaperBalance    float64  `toml:"paper_balance"`
}

// SummaryConfig controls the daily report.
type SummaryConfig struct {
	// Time is the local wall-clock "HH:MM" at which the summary is sent.
	Time string `toml:"time"`
	// Scope is "all_time" (sum every closed trade) or "day" (only trades
	// closed on the report date).
	Scope    string `toml:"scope"`
	Timezone string `toml:"timezone"`
}

// ProviderConfig bounds every call made to the exchange.
type ProviderConfig struct {
	CallTimeout    duration `toml:"call_timeout"`
	MaxRetries     int      `toml:"max_retries"`
	InitialBackoff duration `toml:"initial_backoff"`
	MaxBackoff     duration `toml:"max_backoff"`
	LotCacheTTL    duration `toml:"lot_cache_ttl"`
}

// StoreConfig selects where position history and weights are persisted.
type StoreConfig struct {
	// Backend is one of "file", "postgres" or "sqlite".
	Backend     string `toml:"backend"`
	HistoryPath string `toml:"history_path"`
	WeightsPath string `toml:"weights_path"`
	SQLitePath  string `toml:"sqlite_path"`
	SaveRetries int    `toml:"save_retries"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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

// RedisConfig holds Redis connection parameters. Redis is optional; when
// enabled it provides the single-runner lease and the trade event channel.
type RedisConfig struct {
	Enabled       bool     `toml:"enabled"`
	Addr          string   `toml:"addr"`
	Password      string   `toml:"password"`
	DB            int      `toml:"db"`
	PoolSize      int      `toml:"pool_size"`
	MaxRetries    int      `toml:"max_retries"`
	TLSEnabled    bool     `toml:"tls_enabled"`
	LockKey       string   `toml:"lock_key"`
	LockTTL       duration `toml:"lock_ttl"`
	EventsChannel string   `toml:"events_channel"`
}

// S3Config holds S3-compatible object storage parameters for the state
// mirror.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
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

// ServerConfig holds the read-only status server parameters.
type ServerConfig struct {
	Enabled bool `toml:"enabled"`
	Port    int  `toml:"port"`

	// APIKey, when set, is required as a Bearer token or X-API-Key header.
	APIKey string `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with the stock trading parameters.
func Defaults() Config {
	return Config{
		Binance: BinanceConfig{
			BaseURL:      "https://api.binance.com",
			RecvWindowMs: 5000,
		},
		Trading: TradingConfig{
			Mode:            "live",
			QuoteAsset:      "USDT",
			CapitalFraction: 0.30,
			MinChangePct:    2.0,
			MinQuoteVolume:  500_000,
			Denylist:        []string{"UP", "DOWN", "BUSD", "USDC", "TUSD"},
			TakeProfit:      0.005,
			StopLoss:        0.03,
			MaxHold:         duration{2 * time.Hour},
			Interval:        duration{60 * time.Second},
			PaperBalance:    1000,
		},
		Summary: SummaryConfig{
			Time:  "23:00",
			Scope: "all_time",
		},
		Provider: ProviderConfig{
			CallTimeout:    duration{10 * time.Second},
			MaxRetries:     3,
			InitialBackoff: duration{500 * time.Millisecond},
			MaxBackoff:     duration{5 * time.Second},
			LotCacheTTL:    duration{time.Hour},
		},
		Store: StoreConfig{
			Backend:     "file",
			HistoryPath: "position_history.json",
			WeightsPath: "symbol_weights.json",
			SQLitePath:  "momentumbot.db",
			SaveRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  4,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:          "localhost:6379",
			PoolSize:      4,
			MaxRetries:    3,
			LockKey:       "momentumbot:runner",
			LockTTL:       duration{5 * time.Minute},
			EventsChannel: "momentumbot:positions",
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "momentumbot",
			ForcePathStyle: true,
			Prefix:         "state",
		},
		Server: ServerConfig{
			Port: 8080,
		},
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"live":  true,
	"paper": true,
}

var validBackends = map[string]bool{
	"file":     true,
	"postgres": true,
	"sqlite":   true,
}

var validScopes = map[string]bool{
	"all_time": true,
	"day":      true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Credentials
	mode := strings.ToLower(c.Trading.Mode)
	if !validModes[mode] {
		errs = append(errs, fmt.Sprintf("trading: unknown mode %q (valid: live, paper)", c.Trading.Mode))
	}
	if mode == "live" {
		if c.Binance.APIKey == "" {
			errs = append(errs, "binance: api key is required (BINANCE_API_KEY)")
		}
		if c.Binance.APISecret == "" {
			errs = append(errs, "binance: api secret is required (BINANCE_API_SECRET)")
		}
	}
	if c.Binance.BaseURL == "" {
		errs = append(errs, "binance: base_url must not be empty")
	}
	if c.Notify.TelegramToken == "" {
		errs = append(errs, "notify: telegram token is required (TELEGRAM_BOT_TOKEN)")
	}
	if c.Notify.TelegramChatID == "" {
		errs = append(errs, "notify: telegram chat id is required (TELEGRAM_CHAT_ID)")
	}

	// Trading
	if c.Trading.QuoteAsset == "" {
		errs = append(errs, "trading: quote_asset must not be empty")
	}
	if c.Trading.CapitalFraction <= 0 || c.Trading.CapitalFraction > 1 {
		errs = append(errs, fmt.Sprintf("trading: capital_fraction must be in (0, 1], got %g", c.Trading.CapitalFraction))
	}
	if c.Trading.MinChangePct < 0 {
		errs = append(errs, "trading: min_change_pct must be >= 0")
	}
	if c.Trading.MinQuoteVolume < 0 {
		errs = append(errs, "trading: min_quote_volume must be >= 0")
	}
	if c.Trading.TakeProfit <= 0 {
		errs = append(errs, "trading: take_profit must be > 0")
	}
	if c.Trading.StopLoss <= 0 || c.Trading.StopLoss >= 1 {
		errs = append(errs, "trading: stop_loss must be in (0, 1)")
	}
	if c.Trading.MaxHold.Duration <= 0 {
		errs = append(errs, "trading: max_hold must be > 0")
	}
	if c.Trading.Interval.Duration <= 0 {
		errs = append(errs, "trading: interval must be > 0")
	}
	if mode == "paper" && c.Trading.PaperBalance <= 0 {
		errs = append(errs, "trading: paper_balance must be > 0 in paper mode")
	}

	// Summary
	if _, err := time.Parse("15:04", c.Summary.Time); err != nil {
		errs = append(errs, fmt.Sprintf("summary: time must be HH:MM, got %q", c.Summary.Time))
	}
	if !validScopes[c.Summary.Scope] {
		errs = append(errs, fmt.Sprintf("summary: unknown scope %q (valid: all_time, day)", c.Summary.Scope))
	}
	if c.Summary.Timezone != "" {
		if _, err := time.LoadLocation(c.Summary.Timezone); err != nil {
			errs = append(errs, fmt.Sprintf("summary: unknown timezone %q", c.Summary.Timezone))
		}
	}

	// Provider
	if c.Provider.CallTimeout.Duration <= 0 {
		errs = append(errs, "provider: call_timeout must be > 0")
	}
	if c.Provider.MaxRetries < 0 {
		errs = append(errs, "provider: max_retries must be >= 0")
	}

	// Store
	switch c.Store.Backend {
	case "file":
		if c.Store.HistoryPath == "" || c.Store.WeightsPath == "" {
			errs = append(errs, "store: history_path and weights_path must be set for the file backend")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			errs = append(errs, "store: sqlite_path must be set for the sqlite backend")
		}
	case "postgres":
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
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	default:
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: file, postgres, sqlite)", c.Store.Backend))
	}
	if c.Store.SaveRetries < 0 {
		errs = append(errs, "store: save_retries must be >= 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockKey != "" && c.Redis.LockTTL.Duration <= c.Trading.Interval.Duration {
			errs = append(errs, "redis: lock_ttl must exceed trading.interval")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Location returns the time zone used for the summary schedule.
func (c *Config) Location() *time.Location {
	if c.Summary.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Summary.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
