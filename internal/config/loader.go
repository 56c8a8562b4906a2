package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// DefaultPath is the configuration file read when MOMENTUM_CONFIG is unset.
const DefaultPath = "config.toml"

// Path returns the configuration file path from MOMENTUM_CONFIG, falling back
// to DefaultPath.
func Path() string {
	if p := os.Getenv("MOMENTUM_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies environment variable overrides, and returns the
// final Config. A missing file is not an error: the defaults plus environment
// are a complete configuration. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads the credential variables and the MOMENTUM_*
// variables and overwrites the corresponding Config fields when a variable is
// set (i.e. not empty).
func applyEnvOverrides(cfg *Config) {
	// ── Credentials ──
	setStr(&cfg.Binance.APIKey, "BINANCE_API_KEY")
	setStr(&cfg.Binance.APISecret, "BINANCE_API_SECRET")
	setStr(&cfg.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "TELEGRAM_CHAT_ID")

	// ── Binance ──
	setStr(&cfg.Binance.BaseURL, "MOMENTUM_BINANCE_BASE_URL")
	setInt(&cfg.Binance.RecvWindowMs, "MOMENTUM_BINANCE_RECV_WINDOW_MS")

	// ── Trading ──
	setStr(&cfg.Trading.Mode, "MOMENTUM_TRADING_MODE")
	setStr(&cfg.Trading.QuoteAsset, "MOMENTUM_TRADING_QUOTE_ASSET")
	setFloat64(&cfg.Trading.CapitalFraction, "MOMENTUM_TRADING_CAPITAL_FRACTION")
	setFloat64(&cfg.Trading.MinChangePct, "MOMENTUM_TRADING_MIN_CHANGE_PCT")
	setFloat64(&cfg.Trading.MinQuoteVolume, "MOMENTUM_TRADING_MIN_QUOTE_VOLUME")
	setStringSlice(&cfg.Trading.Denylist, "MOMENTUM_TRADING_DENYLIST")
	setFloat64(&cfg.Trading.TakeProfit, "MOMENTUM_TRADING_TAKE_PROFIT")
	setFloat64(&cfg.Trading.StopLoss, "MOMENTUM_TRADING_STOP_LOSS")
	setDuration(&cfg.Trading.MaxHold, "MOMENTUM_TRADING_MAX_HOLD")
	setDuration(&cfg.Trading.Interval, "MOMENTUM_TRADING_INTERVAL")
	setFloat64(&cfg.Trading.PaperBalance, "MOMENTUM_TRADING_PAPER_BALANCE")

	// ── Summary ──
	setStr(&cfg.Summary.Time, "MOMENTUM_SUMMARY_TIME")
	setStr(&cfg.Summary.Scope, "MOMENTUM_SUMMARY_SCOPE")
	setStr(&cfg.Summary.Timezone, "MOMENTUM_SUMMARY_TIMEZONE")

	// ── Provider ──
	setDuration(&cfg.Provider.CallTimeout, "MOMENTUM_PROVIDER_CALL_TIMEOUT")
	setInt(&cfg.Provider.MaxRetries, "MOMENTUM_PROVIDER_MAX_RETRIES")
	setDuration(&cfg.Provider.InitialBackoff, "MOMENTUM_PROVIDER_INITIAL_BACKOFF")
	setDuration(&cfg.Provider.MaxBackoff, "MOMENTUM_PROVIDER_MAX_BACKOFF")
	setDuration(&cfg.Provider.LotCacheTTL, "MOMENTUM_PROVIDER_LOT_CACHE_TTL")

	// ── Store ──
	setStr(&cfg.Store.Backend, "MOMENTUM_STORE_BACKEND")
	setStr(&cfg.Store.HistoryPath, "MOMENTUM_STORE_HISTORY_PATH")
	setStr(&cfg.Store.WeightsPath, "MOMENTUM_STORE_WEIGHTS_PATH")
	setStr(&cfg.Store.SQLitePath, "MOMENTUM_STORE_SQLITE_PATH")
	setInt(&cfg.Store.SaveRetries, "MOMENTUM_STORE_SAVE_RETRIES")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "MOMENTUM_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MOMENTUM_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MOMENTUM_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MOMENTUM_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MOMENTUM_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MOMENTUM_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MOMENTUM_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MOMENTUM_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MOMENTUM_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MOMENTUM_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "MOMENTUM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "MOMENTUM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MOMENTUM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MOMENTUM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MOMENTUM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MOMENTUM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MOMENTUM_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.LockKey, "MOMENTUM_REDIS_LOCK_KEY")
	setDuration(&cfg.Redis.LockTTL, "MOMENTUM_REDIS_LOCK_TTL")
	setStr(&cfg.Redis.EventsChannel, "MOMENTUM_REDIS_EVENTS_CHANNEL")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MOMENTUM_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MOMENTUM_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MOMENTUM_S3_REGION")
	setStr(&cfg.S3.Bucket, "MOMENTUM_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MOMENTUM_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MOMENTUM_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MOMENTUM_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MOMENTUM_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "MOMENTUM_S3_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MOMENTUM_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MOMENTUM_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "MOMENTUM_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "MOMENTUM_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MOMENTUM_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "MOMENTUM_LOG_LEVEL")
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

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
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
