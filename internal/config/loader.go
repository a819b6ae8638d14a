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
// built-in defaults, applies ALERTBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ALERTBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Exchange ──
	setStr(&cfg.Exchange.RestURL, "ALERTBOT_EXCHANGE_REST_URL")
	setStr(&cfg.Exchange.WsURL, "ALERTBOT_EXCHANGE_WS_URL")
	setDuration(&cfg.Exchange.RequestTimeout, "ALERTBOT_EXCHANGE_REQUEST_TIMEOUT")
	setDuration(&cfg.Exchange.ReconnectDelay, "ALERTBOT_EXCHANGE_RECONNECT_DELAY")
	setDuration(&cfg.Exchange.PriceMaxAge, "ALERTBOT_EXCHANGE_PRICE_MAX_AGE")
	setStringSlice(&cfg.Exchange.WatchPairs, "ALERTBOT_EXCHANGE_WATCH_PAIRS")
	setBool(&cfg.Exchange.FeedEnabled, "ALERTBOT_EXCHANGE_FEED_ENABLED")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "ALERTBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "ALERTBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "ALERTBOT_SUPABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "ALERTBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ALERTBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ALERTBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ALERTBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ALERTBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ALERTBOT_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ALERTBOT_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ALERTBOT_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ALERTBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ALERTBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ALERTBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ALERTBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ALERTBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ALERTBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ALERTBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "ALERTBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "ALERTBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ALERTBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "ALERTBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ALERTBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ALERTBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ALERTBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ALERTBOT_S3_FORCE_PATH_STYLE")

	// ── Engine / backtest ──
	setInt(&cfg.Engine.InboxSize, "ALERTBOT_ENGINE_INBOX_SIZE")
	setInt(&cfg.Engine.LogLimit, "ALERTBOT_ENGINE_LOG_LIMIT")
	setDuration(&cfg.Backtest.Pacing, "ALERTBOT_BACKTEST_PACING")
	setStr(&cfg.Backtest.ReportPrefix, "ALERTBOT_BACKTEST_REPORT_PREFIX")
	setDuration(&cfg.Backtest.Timeout, "ALERTBOT_BACKTEST_TIMEOUT")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ALERTBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ALERTBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ALERTBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ALERTBOT_SERVER_API_KEY")
	setInt(&cfg.Server.AlertRateLimit, "ALERTBOT_SERVER_ALERT_RATE_LIMIT")
	setDuration(&cfg.Server.AlertRateWindow, "ALERTBOT_SERVER_ALERT_RATE_WINDOW")
	setBool(&cfg.Server.MetricsEnabled, "ALERTBOT_SERVER_METRICS_ENABLED")

	// ── Webhook ──
	setStr(&cfg.Webhook.Secret, "ALERTBOT_WEBHOOK_SECRET")
	setStr(&cfg.Webhook.EncryptedSecretPath, "ALERTBOT_WEBHOOK_ENCRYPTED_SECRET_PATH")
	setStr(&cfg.Webhook.SecretPassword, "ALERTBOT_WEBHOOK_SECRET_PASSWORD")
	setDuration(&cfg.Webhook.DedupTTL, "ALERTBOT_WEBHOOK_DEDUP_TTL")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ALERTBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ALERTBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ALERTBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ALERTBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ALERTBOT_MODE")
	setStr(&cfg.LogLevel, "ALERTBOT_LOG_LEVEL")
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
