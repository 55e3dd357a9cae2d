package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/alanyoungcy/cardmarket/internal/blob/s3"
	memcache "github.com/alanyoungcy/cardmarket/internal/cache/memory"
	"github.com/alanyoungcy/cardmarket/internal/cache/redis"
	"github.com/alanyoungcy/cardmarket/internal/config"
	"github.com/alanyoungcy/cardmarket/internal/domain"
	"github.com/alanyoungcy/cardmarket/internal/notify"
	"github.com/alanyoungcy/cardmarket/internal/registry"
	"github.com/alanyoungcy/cardmarket/internal/store/memory"
	"github.com/alanyoungcy/cardmarket/internal/store/postgres"
)

// Dependencies bundles every backend the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	StateStore  domain.StateStore
	Settlements domain.SettlementStore
	AuditStore  domain.AuditStore

	// Collaborators the engine moves assets and currency through.
	Assets   domain.AssetRegistry
	Payments domain.PaymentRail

	// Caches
	SignalBus   domain.SignalBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// Archiver is nil unless the mode exports history to object storage.
	Archiver domain.Archiver

	Notifier *notify.Notifier

	// sweepLimiter prunes the in-memory rate limiter. Nil with Redis, whose
	// keys expire on their own.
	sweepLimiter func(window time.Duration)
}

// needsS3 returns true for modes that export history to object storage.
func needsS3(mode string) bool {
	switch mode {
	case "archive", "full":
		return true
	default:
		return false
	}
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

	// --- PostgreSQL, or in-memory state for local development ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Postgres.DSN,
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.PoolMaxConns,
			MinConns:        cfg.Postgres.PoolMinConns,
			MaxConnLifetime: cfg.Postgres.MaxConnLifetime.Duration,
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
		deps.StateStore = postgres.NewStateStore(pool)
		deps.Settlements = postgres.NewSettlementStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Assets = postgres.NewAssetRegistry(pool)
		deps.Payments = postgres.NewAccountStore(pool, cfg.EngineAddress())
	} else {
		logger.WarnContext(ctx, "postgres disabled, state is kept in memory and lost on exit")
		assets, accounts, err := seedDev(cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: %w", err)
		}
		deps.StateStore = memory.NewStateStore()
		deps.Settlements = memory.NewSettlementStore()
		deps.AuditStore = memory.NewAuditStore()
		deps.Assets = assets
		deps.Payments = accounts
		logger.InfoContext(ctx, "seeded in-memory registry",
			slog.Int("cards", len(cfg.Dev.Cards)),
			slog.Int("deposits", len(cfg.Dev.Deposits)),
		)
	}

	// --- Redis, or process-local bus, lock and limiter ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	} else {
		limiter := memcache.NewRateLimiter()
		deps.SignalBus = memcache.NewBus(0)
		deps.LockManager = memcache.NewLockManager()
		deps.RateLimiter = limiter
		deps.sweepLimiter = limiter.Cleanup
	}

	// --- S3 blob storage (only for modes that archive history) ---
	if needsS3(cfg.Mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			s3blob.NewReader(s3Client),
			deps.Settlements,
			deps.AuditStore,
			cfg.Archive.Purge,
		)
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

// seedDev builds the in-memory registry and payment accounts from the [dev]
// config section.
func seedDev(cfg *config.Config) (*registry.Assets, *registry.Accounts, error) {
	assets := registry.NewAssets()
	accounts := registry.NewAccounts()
	engine := cfg.EngineAddress()

	owners := make(map[domain.Address]bool)
	for _, card := range cfg.Dev.Cards {
		owner := common.HexToAddress(card.Owner)
		if err := assets.Mint(domain.AssetID(card.ID), owner); err != nil {
			return nil, nil, fmt.Errorf("seed card %d: %w", card.ID, err)
		}
		owners[owner] = true
	}
	if cfg.Dev.ApproveEngine {
		for owner := range owners {
			assets.SetApprovalForAll(owner, engine, true)
		}
	}
	for addr, amount := range cfg.Dev.Deposits {
		accounts.Deposit(common.HexToAddress(addr), domain.Amount(amount))
	}
	return assets, accounts, nil
}
