package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/monarena/monarena/internal/blob/s3"
	"github.com/monarena/monarena/internal/cache/redis"
	"github.com/monarena/monarena/internal/chain"
	"github.com/monarena/monarena/internal/config"
	"github.com/monarena/monarena/internal/domain"
	"github.com/monarena/monarena/internal/feed"
	"github.com/monarena/monarena/internal/notify"
	"github.com/monarena/monarena/internal/server"
	"github.com/monarena/monarena/internal/server/handler"
	"github.com/monarena/monarena/internal/server/ws"
	"github.com/monarena/monarena/internal/service"
	"github.com/monarena/monarena/internal/store/postgres"
)

// Dependencies bundles everything the round engine needs to operate. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Stores
	RoundStore    domain.RoundStore
	AgentStore    domain.AgentStore
	BalanceStore  domain.BalanceStore
	UserBetStore  domain.UserBetStore
	TileBetStore  domain.TileBetStore
	SnapshotStore domain.SnapshotStore

	// Redis
	EventBus    domain.EventBus
	PriceStore  domain.PriceStore
	LockManager domain.LockManager

	// Chain
	Contract domain.RoundContract

	// Feed
	Feed     *feed.TickerFeed
	Recorder *feed.Recorder

	// Blob storage; nil when archiving is disabled.
	Archiver domain.RoundArchiver

	// Services
	AgentBetting *service.AgentBettingService
	Payouts      *service.PayoutService
	UserBetting  *service.UserBettingService
	Manager      *service.RoundManager

	// Public API; nil when the server is disabled.
	Server *server.Server
	Hub    *ws.Hub

	// Operator alerts; nil when no channel is configured.
	Alerter *notify.RoundAlerter
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

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.RoundStore = postgres.NewRoundStore(pool)
	deps.AgentStore = postgres.NewAgentStore(pool)
	deps.BalanceStore = postgres.NewBalanceStore(pool)
	deps.UserBetStore = postgres.NewUserBetStore(pool)
	deps.TileBetStore = postgres.NewTileBetStore(pool)
	deps.SnapshotStore = postgres.NewSnapshotStore(pool)

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

	eventBus := redis.NewEventBus(redisClient)
	deps.EventBus = eventBus
	deps.PriceStore = redis.NewPriceCache(redisClient)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- Chain ---
	chainClient, err := chain.New(ctx, chain.ClientConfig{
		RPCURL:          cfg.Chain.RPCURL,
		ContractAddress: cfg.Chain.ContractAddress,
		ChainID:         cfg.Chain.ChainID,
		Key: chain.KeyConfig{
			RawPrivateKey:    cfg.Chain.PrivateKey,
			EncryptedKeyPath: cfg.Chain.EncryptedKeyPath,
			KeyPassword:      cfg.Chain.KeyPassword,
		},
	}, logger)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: chain: %w", err)
	}
	closers = append(closers, func() { _ = chainClient.Close() })
	deps.Contract = chainClient

	// --- Price feed ---
	deps.Feed = feed.NewTickerFeed(cfg.Feed.WsURL, cfg.Feed.Symbol, logger)
	closers = append(closers, deps.Feed.Close)
	deps.Recorder = feed.NewRecorder(deps.Feed, cfg.Feed.Symbol, deps.SnapshotStore, deps.PriceStore, deps.EventBus, logger)

	// --- S3 round archive (optional) ---
	if cfg.S3.Bucket != "" {
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
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.RoundStore,
			deps.SnapshotStore,
			deps.TileBetStore,
			deps.UserBetStore,
		)
	}

	// --- Services ---
	deps.AgentBetting = service.NewAgentBettingService(deps.TileBetStore, deps.BalanceStore, deps.Contract, deps.EventBus, logger)
	deps.Payouts = service.NewPayoutService(deps.RoundStore, deps.BalanceStore, deps.UserBetStore, deps.Contract, logger)
	deps.UserBetting = service.NewUserBettingService(deps.RoundStore, deps.UserBetStore, deps.BalanceStore, deps.Contract, deps.EventBus, cfg.Round.MinBet, logger)

	deps.Manager = service.NewRoundManager(service.RoundManagerConfig{
		BettingDuration: cfg.Round.BettingDuration.Duration,
		TradingDuration: cfg.Round.TradingDuration.Duration,
		ColumnDuration:  cfg.Round.ColumnDuration.Duration,
		PlacementWindow: cfg.Round.PlacementWindow.Duration,
		Cooldown:        cfg.Round.Cooldown.Duration,
		FailureDelay:    cfg.Round.FailureDelay.Duration,
		SeedStake:       cfg.Round.SeedStake,
	},
		deps.RoundStore, deps.AgentStore, deps.BalanceStore,
		deps.AgentBetting, deps.Payouts,
		deps.Feed, deps.Recorder, deps.Contract, deps.EventBus, deps.Archiver,
		logger,
	)

	// Feed ticks drive in-round tile resolution.
	deps.Feed.OnTick(deps.Manager.HandleTick)

	// --- Public API (optional) ---
	if cfg.Server.Enabled {
		deps.Hub = ws.NewHub(eventBus, cfg.Feed.Symbol, logger)
		deps.Server = server.NewServer(
			server.Config{
				Port:        cfg.Server.Port,
				CORSOrigins: cfg.Server.CORSOrigins,
				APIKey:      cfg.Server.APIKey,
			},
			server.Handlers{
				Health: handler.NewHealthHandler(deps.Feed, logger),
				Rounds: handler.NewRoundHandler(deps.RoundStore, deps.TileBetStore, deps.SnapshotStore, deps.Payouts, logger),
				Agents: handler.NewAgentHandler(deps.AgentStore, deps.BalanceStore, logger),
				Bets:   handler.NewBetHandler(deps.UserBetting, deps.UserBetStore, logger),
			},
			deps.Hub,
			redis.NewRateLimiter(redisClient),
			logger,
		)
	}

	// --- Operator alerts (optional) ---
	if cfg.Notify.Enabled() {
		var senders []notify.Sender
		if cfg.Notify.DiscordWebhookURL != "" {
			senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
		}
		if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
			senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
		}
		notifier := notify.NewNotifier(senders, cfg.Notify.Events, logger)
		deps.Alerter = notify.NewRoundAlerter(eventBus, notifier, logger)
	}

	return deps, cleanup, nil
}
