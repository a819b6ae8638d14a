// Package config defines the top-level configuration for alertbot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/alertbot/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ALERTBOT_* environment variables.
type Config struct {
	Exchange ExchangeConfig     `toml:"exchange"`
	Postgres PostgresConfig     `toml:"postgres"`
	Redis    RedisConfig        `toml:"redis"`
	S3       S3Config           `toml:"s3"`
	Engine   EngineConfig       `toml:"engine"`
	Backtest BacktestConfig     `toml:"backtest"`
	Server   ServerConfig       `toml:"server"`
	Webhook  WebhookConfig      `toml:"webhook"`
	Notify   NotifyConfig       `toml:"notify"`
	Bots     []domain.BotConfig `toml:"bots"`
	Mode     string             `toml:"mode"`
	LogLevel string             `toml:"log_level"`
}

// ExchangeConfig holds the Binance spot endpoints used for prices.
type ExchangeConfig struct {
	RestURL        string   `toml:"rest_url"`
	WsURL          string   `toml:"ws_url"`
	RequestTimeout duration `toml:"request_timeout"`
	ReconnectDelay duration `toml:"reconnect_delay"`
	// PriceMaxAge is how old a cached price may be before the REST API is asked.
	PriceMaxAge duration `toml:"price_max_age"`
	WatchPairs  []string `toml:"watch_pairs"`
	FeedEnabled bool     `toml:"feed_enabled"`
}

// PostgresConfig holds PostgreSQL / Supabase connection parameters.
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
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EngineConfig tunes per-bot engines.
type EngineConfig struct {
	InboxSize int `toml:"inbox_size"`
	LogLimit  int `toml:"log_limit"`
}

// BacktestConfig controls historical replay.
type BacktestConfig struct {
	Pacing       duration `toml:"pacing"`
	ReportPrefix string   `toml:"report_prefix"`
	Timeout      duration `toml:"timeout"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	// AlertRateLimit is the number of alerts accepted per bot per AlertRateWindow.
	AlertRateLimit  int      `toml:"alert_rate_limit"`
	AlertRateWindow duration `toml:"alert_rate_window"`
	// MetricsEnabled exposes Prometheus metrics on GET /metrics.
	MetricsEnabled bool `toml:"metrics_enabled"`
}

// WebhookConfig controls alert authentication. The secret may be given in
// clear or as an encrypted file unlocked with SecretPassword.
type WebhookConfig struct {
	Secret              string   `toml:"secret"`
	EncryptedSecretPath string   `toml:"encrypted_secret_path"`
	SecretPassword      string   `toml:"secret_password"`
	DedupTTL            duration `toml:"dedup_ttl"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
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

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			RestURL:        "https://api.binance.com",
			WsURL:          "wss://stream.binance.com:9443/ws",
			RequestTimeout: duration{10 * time.Second},
			ReconnectDelay: duration{2 * time.Second},
			PriceMaxAge:    duration{5 * time.Second},
			FeedEnabled:    true,
		},
		Postgres: PostgresConfig{
			Enabled:       true,
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:         "us-east-1",
			UseSSL:         true,
			ForcePathStyle: true,
		},
		Engine: EngineConfig{
			InboxSize: 64,
			LogLimit:  500,
		},
		Backtest: BacktestConfig{
			Pacing:       duration{5 * time.Millisecond},
			ReportPrefix: "backtests",
			Timeout:      duration{30 * time.Minute},
		},
		Server: ServerConfig{
			Enabled:         true,
			Port:            8000,
			CORSOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
			AlertRateLimit:  30,
			AlertRateWindow: duration{time.Minute},
			MetricsEnabled:  true,
		},
		Webhook: WebhookConfig{
			DedupTTL: duration{10 * time.Minute},
		},
		Notify: NotifyConfig{
			Events: []string{"position_closed", "backtest_finished"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":   true,
	"backtest": true,
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

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, backtest)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Exchange
	if c.Exchange.RestURL == "" {
		errs = append(errs, "exchange: rest_url must not be empty")
	}
	if c.Exchange.FeedEnabled && c.Exchange.WsURL == "" {
		errs = append(errs, "exchange: ws_url must not be empty when feed_enabled")
	}
	if c.Exchange.RequestTimeout.Duration <= 0 {
		errs = append(errs, "exchange: request_timeout must be > 0")
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
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Engine / backtest
	if c.Engine.InboxSize < 1 {
		errs = append(errs, "engine: inbox_size must be >= 1")
	}
	if c.Engine.LogLimit < 0 {
		errs = append(errs, "engine: log_limit must be >= 0")
	}
	if c.Backtest.Pacing.Duration < 0 {
		errs = append(errs, "backtest: pacing must be >= 0")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.AlertRateLimit < 0 {
			errs = append(errs, "server: alert_rate_limit must be >= 0")
		}
	}

	// Webhook
	if c.Webhook.EncryptedSecretPath != "" && c.Webhook.SecretPassword == "" {
		errs = append(errs, "webhook: secret_password is required when encrypted_secret_path is set")
	}

	// Bots
	for i, b := range c.Bots {
		if err := b.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("bots[%d]: %v", i, err))
		}
		if b.HistKey != "" && !c.S3.Enabled {
			errs = append(errs, fmt.Sprintf("bots[%d]: hist_key requires s3.enabled", i))
		}
	}
	if strings.EqualFold(c.Mode, "backtest") {
		n := 0
		for _, b := range c.Bots {
			if b.Backtest() {
				n++
			}
		}
		if n == 0 {
			errs = append(errs, "backtest mode needs at least one bot with hist_data or hist_key")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
