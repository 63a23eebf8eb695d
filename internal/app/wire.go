package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/fillscope/internal/cache/redis"
	"github.com/alanyoungcy/fillscope/internal/config"
	"github.com/alanyoungcy/fillscope/internal/domain"
	"github.com/alanyoungcy/fillscope/internal/notify"
	"github.com/alanyoungcy/fillscope/internal/platform/cryptocompare"
	"github.com/alanyoungcy/fillscope/internal/platform/ethplorer"
	"github.com/alanyoungcy/fillscope/internal/queue"
	"github.com/alanyoungcy/fillscope/internal/rates"
	"github.com/alanyoungcy/fillscope/internal/registry"
	"github.com/alanyoungcy/fillscope/internal/store/postgres"
	"github.com/alanyoungcy/fillscope/internal/tokens"
	"github.com/alanyoungcy/fillscope/internal/valuation"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	FillStore  domain.FillStore
	TokenStore domain.TokenStore

	// Redis-backed infrastructure
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	Publisher   *queue.Publisher
	RedisClient *redis.Client

	// Catalog and resolution
	Resolver *registry.Resolver

	// Valuation
	TokenCache   *tokens.Cache
	RateService  *rates.Service
	Measurer     *valuation.Measurer
	FeeConverter *valuation.FeeConverter

	// Providers
	MetadataProvider domain.TokenMetadataProvider

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
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

	deps.FillStore = postgres.NewFillStore(pgClient)
	deps.TokenStore = postgres.NewTokenStore(pgClient)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.RedisClient = redisClient
	deps.RateLimiter = redis.NewRateLimiter(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)
	deps.Publisher = queue.NewPublisher(redisClient)

	// --- Entity catalog ---
	catalog, err := registry.LoadCatalog(cfg.Catalog.DefinitionPaths...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: catalog: %w", err)
	}
	overrides, err := registry.LoadOverrides(cfg.Catalog.OverridesPath)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: relayer overrides: %w", err)
	}
	deps.Resolver = registry.NewResolver(catalog, overrides)

	// --- Providers and valuation ---
	rateProvider := cryptocompare.NewClient(cfg.Providers.CryptoCompareBaseURL, cfg.Providers.CryptoCompareAPIKey)
	deps.MetadataProvider = ethplorer.NewClient(cfg.Providers.EthplorerBaseURL, cfg.Providers.EthplorerAPIKey)

	deps.TokenCache = tokens.NewCache()
	if err := deps.TokenCache.Init(ctx, deps.TokenStore); err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: token cache: %w", err)
	}

	deps.RateService = rates.NewService(rateProvider, deps.RateLimiter, cfg.Providers.RateLimitPerMinute, logger)
	deps.Measurer = valuation.NewMeasurer(deps.RateService, deps.TokenCache, logger)
	deps.FeeConverter = valuation.NewFeeConverter(deps.RateService, deps.TokenCache, deps.FillStore, logger)

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
