package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/momentumbot/internal/blob/s3"
	"github.com/alanyoungcy/momentumbot/internal/cache/redis"
	"github.com/alanyoungcy/momentumbot/internal/config"
	"github.com/alanyoungcy/momentumbot/internal/crypto"
	"github.com/alanyoungcy/momentumbot/internal/domain"
	"github.com/alanyoungcy/momentumbot/internal/executor"
	"github.com/alanyoungcy/momentumbot/internal/notify"
	"github.com/alanyoungcy/momentumbot/internal/platform/binance"
	"github.com/alanyoungcy/momentumbot/internal/platform/paper"
	"github.com/alanyoungcy/momentumbot/internal/store"
	"github.com/alanyoungcy/momentumbot/internal/store/mirror"
)

// Dependencies bundles the infrastructure the trading loop runs on. It is
// built by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Provider is the guarded market provider used by every service.
	Provider domain.MarketProvider
	// Paper is set in paper mode so restored holdings can be credited.
	Paper *paper.Exchange

	PositionStore domain.PositionStore
	WeightStore   domain.WeightStore

	// Optional; nil when Redis is disabled.
	LockManager domain.LockManager
	EventBus    domain.EventBus

	Notifier *notify.Notifier
}

// Wire constructs every concrete implementation selected by cfg and returns
// them with a cleanup function releasing what was opened, in reverse order.
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

	deps := &Dependencies{}

	// --- Market provider ---
	exchange := binance.NewClient(cfg.Binance.BaseURL,
		&crypto.HMACAuth{Key: cfg.Binance.APIKey, Secret: cfg.Binance.APISecret},
		binance.WithRecvWindow(time.Duration(cfg.Binance.RecvWindowMs)*time.Millisecond),
		binance.WithLotCacheTTL(cfg.Provider.LotCacheTTL.Duration),
	)
	var inner domain.MarketProvider = exchange
	if cfg.Trading.Mode == "paper" {
		deps.Paper = paper.New(exchange, cfg.Trading.QuoteAsset,
			decimal.NewFromFloat(cfg.Trading.PaperBalance), logger)
		inner = deps.Paper
	}
	deps.Provider = executor.NewGuardedProvider(inner, cfg.Provider.CallTimeout.Duration,
		executor.RetryPolicy{
			MaxRetries:     cfg.Provider.MaxRetries,
			InitialBackoff: cfg.Provider.InitialBackoff.Duration,
			MaxBackoff:     cfg.Provider.MaxBackoff.Duration,
		}, logger)

	// --- Stores ---
	backend, err := store.Open(ctx, cfg.Store, cfg.Postgres)
	if err != nil {
		return fail(fmt.Errorf("wire: %w", err))
	}
	closers = append(closers, func() { _ = backend.Close() })
	deps.PositionStore = backend.Positions
	deps.WeightStore = backend.Weights

	// --- S3 state mirror ---
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
		if err := s3Client.Health(ctx); err != nil {
			// the mirror is best effort; trading goes on without it
			logger.WarnContext(ctx, "s3 bucket not reachable, mirror uploads will be retried on each save",
				slog.String("error", err.Error()),
			)
		}
		blob := s3blob.NewWriter(s3Client)
		deps.PositionStore = mirror.NewPositionStore(deps.PositionStore, blob, cfg.S3.Prefix, logger)
		deps.WeightStore = mirror.NewWeightStore(deps.WeightStore, blob, cfg.S3.Prefix, logger)
	}

	// --- Redis lease and event bus ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.Dial(ctx, redis.Config{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLS:        cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.LockManager = redisClient.Locks()
		if cfg.Redis.EventsChannel != "" {
			deps.EventBus = redisClient.Events()
		}
	}

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
