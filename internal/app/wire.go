package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/alanyoungcy/alertbot/internal/blob/s3"
	"github.com/alanyoungcy/alertbot/internal/cache/redis"
	"github.com/alanyoungcy/alertbot/internal/config"
	"github.com/alanyoungcy/alertbot/internal/crypto"
	"github.com/alanyoungcy/alertbot/internal/domain"
	"github.com/alanyoungcy/alertbot/internal/notify"
	"github.com/alanyoungcy/alertbot/internal/platform/binance"
	"github.com/alanyoungcy/alertbot/internal/server/handler"
	"github.com/alanyoungcy/alertbot/internal/store/postgres"
)

const (
	// priceCacheTTL bounds how long a pair's last price survives without ticks.
	priceCacheTTL      = 10 * time.Minute
	botLogStreamMaxLen = 10000
)

// Dependencies are the concrete backends shared by the modes. Postgres and
// S3 backed fields are nil when the backend is disabled.
type Dependencies struct {
	// Stores
	LogStore   domain.LogStore
	TradeStore domain.TradeStore
	AuditStore domain.AuditStore

	// Caches
	PriceCache  domain.PriceCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	Exchange      *binance.Client
	Notifier      *notify.Notifier
	WebhookSecret []byte

	// HealthChecks probe each connected backend.
	HealthChecks map[string]handler.Checker
}

// Wire builds the backends from cfg and returns them with a cleanup
// function that releases them.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{HealthChecks: make(map[string]handler.Checker)}

	// --- Redis (required) ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: redis: %w", err))
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.PriceCache = redis.NewPriceCache(redisClient, priceCacheTTL)
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.SignalBus = redis.NewSignalBus(redisClient, botLogStreamMaxLen)
	deps.HealthChecks["redis"] = redisClient.Ping

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
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
		}

		pool := pgClient.Pool()
		deps.LogStore = postgres.NewLogStore(pool)
		deps.TradeStore = postgres.NewTradeStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.HealthChecks["postgres"] = pgClient.Ping
	}

	// --- S3 ---
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
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.HealthChecks["s3"] = s3Client.Health
	}

	// --- Exchange ---
	deps.Exchange = binance.NewClient(cfg.Exchange.RestURL, cfg.Exchange.RequestTimeout.Duration)

	// --- Webhook secret ---
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		Plain:      cfg.Webhook.Secret,
		SealedPath: cfg.Webhook.EncryptedSecretPath,
		Password:   cfg.Webhook.SecretPassword,
	})
	if err != nil {
		return fail(fmt.Errorf("wire: webhook secret: %w", err))
	}
	if len(secret) == 0 {
		logger.Warn("webhook secret not configured; alerts are accepted unsigned")
	}
	deps.WebhookSecret = secret

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
