package di

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/birdeye-sniper/sniper_service/internal/api/handlers"
	"github.com/birdeye-sniper/sniper_service/internal/api/routes"
	"github.com/birdeye-sniper/sniper_service/internal/api/telegram"
	domainrepos "github.com/birdeye-sniper/sniper_service/internal/domain/repositories"
	"github.com/birdeye-sniper/sniper_service/internal/domain/services/health"
	"github.com/birdeye-sniper/sniper_service/internal/domain/services/monitor"
	"github.com/birdeye-sniper/sniper_service/internal/domain/services/notifier"
	"github.com/birdeye-sniper/sniper_service/internal/domain/services/pending"
	"github.com/birdeye-sniper/sniper_service/internal/domain/services/setup"
	"github.com/birdeye-sniper/sniper_service/internal/infrastructure/adapters"
	"github.com/birdeye-sniper/sniper_service/internal/infrastructure/cache"
	"github.com/birdeye-sniper/sniper_service/internal/infrastructure/config"
	"github.com/birdeye-sniper/sniper_service/internal/infrastructure/database"
	"github.com/birdeye-sniper/sniper_service/internal/infrastructure/ledger"
	"github.com/birdeye-sniper/sniper_service/internal/infrastructure/pricing"
	"github.com/birdeye-sniper/sniper_service/internal/infrastructure/repositories"
	tgclient "github.com/birdeye-sniper/sniper_service/internal/infrastructure/telegram"
	"github.com/birdeye-sniper/sniper_service/internal/workers/price_refresh"
	"github.com/birdeye-sniper/sniper_service/pkg/logger"
	"github.com/birdeye-sniper/sniper_service/pkg/scheduler"

	"github.com/gin-gonic/gin"
)

// Container holds every long-lived component of the bot
type Container struct {
	Config *config.Config
	Logger *logger.Logger
	ZapLog *zap.Logger

	DB    *sqlx.DB
	Redis cache.RedisClient

	Ledger    *ledger.SolanaClient
	Chat      *tgclient.Client
	Prices    *pricing.CoinGeckoClient
	Email     *adapters.EmailService
	Users     domainrepos.UserRepository
	Scheduler *scheduler.GocronScheduler

	Notifier    *notifier.Service
	Monitor     *monitor.Service
	Wizard      *pending.Wizard
	Health      *health.Service
	Setup       *setup.Service
	PriceWorker *price_refresh.Worker
	Bot         *telegram.Bot
	Router      *gin.Engine
}

// NewContainer builds the object graph. Close releases what it opened.
func NewContainer(cfg *config.Config, log *logger.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: log, ZapLog: log.Zap()}

	if err := c.buildInfrastructure(); err != nil {
		c.Close()
		return nil, err
	}
	c.buildServices()
	c.buildSurfaces()
	return c, nil
}

func (c *Container) buildInfrastructure() error {
	cfg := c.Config

	solana, err := ledger.NewSolanaClient(ledger.Config{
		RPCURL:       cfg.Solana.RPCURL,
		Commitment:   cfg.Solana.Commitment,
		Address:      cfg.Solana.Address,
		PrivateKey:   cfg.Solana.PrivateKey,
		HeliusAPIKey: cfg.Solana.HeliusAPIKey,
		HeliusURL:    cfg.Solana.HeliusURL,
	}, c.ZapLog.Named("ledger"))
	if err != nil {
		return fmt.Errorf("failed to create ledger client: %w", err)
	}
	c.Ledger = solana

	chat, err := tgclient.NewClient(tgclient.Config{
		BotToken:          cfg.Telegram.BotToken,
		UpdateTimeout:     cfg.Telegram.UpdateTimeout,
		MessagesPerSecond: cfg.Telegram.MessagesPerSecond,
		Burst:             cfg.Telegram.Burst,
		Debug:             cfg.Telegram.Debug,
	}, c.ZapLog.Named("telegram"))
	if err != nil {
		return fmt.Errorf("failed to create chat client: %w", err)
	}
	c.Chat = chat

	c.Prices = pricing.NewCoinGeckoClient(pricing.Config{
		URL:     cfg.Pricing.URL,
		Timeout: cfg.Pricing.Timeout,
	}, c.ZapLog.Named("pricing"))

	if cfg.Email.Provider != "" {
		email, err := adapters.NewEmailService(c.ZapLog.Named("email"), adapters.EmailServiceConfig{
			Provider:  cfg.Email.Provider,
			APIKey:    cfg.Email.APIKey,
			FromEmail: cfg.Email.FromEmail,
			FromName:  cfg.Email.FromName,
		})
		if err != nil {
			return fmt.Errorf("failed to create email service: %w", err)
		}
		c.Email = email
	}

	users, err := c.buildUserStore()
	if err != nil {
		return err
	}
	c.Users = users

	sched, err := scheduler.New(c.ZapLog.Named("scheduler"))
	if err != nil {
		return err
	}
	c.Scheduler = sched
	return nil
}

// buildUserStore opens the persistence backend selected by store.driver
func (c *Container) buildUserStore() (domainrepos.UserRepository, error) {
	cfg := c.Config
	switch cfg.Store.Driver {
	case "postgres":
		db, err := database.NewConnection(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		c.DB = db
		if err := database.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsPath); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		c.Logger.Info("User store: postgres")
		return repositories.NewUserPostgresRepository(db, c.ZapLog.Named("users")), nil

	case "redis":
		rdb, err := cache.NewRedisClient(cfg.Redis, c.ZapLog.Named("redis"))
		if err != nil {
			return nil, err
		}
		c.Redis = rdb
		c.Logger.Info("User store: redis", "prefix", cfg.Redis.KeyPrefix)
		return repositories.NewUserRedisRepository(rdb, cfg.Redis.KeyPrefix, c.ZapLog.Named("users")), nil

	default:
		repo, err := repositories.NewUserFileRepository(cfg.Store.DataFile, c.ZapLog.Named("users"))
		if err != nil {
			return nil, fmt.Errorf("failed to open user data file: %w", err)
		}
		c.Logger.Info("User store: file", "path", cfg.Store.DataFile)
		return repo, nil
	}
}

func (c *Container) buildServices() {
	cfg := c.Config

	// a typed nil inside the interface would defeat the notifier's nil check
	var mailer notifier.Mailer
	if c.Email != nil {
		mailer = c.Email
	}

	c.Notifier = notifier.NewService(c.Chat, c.Prices, mailer, notifier.Config{
		GroupID:      cfg.Telegram.GroupID,
		AdminIDs:     cfg.Telegram.AdminIDs,
		DefaultPrice: decimal.NewFromFloat(cfg.Pricing.DefaultPrice),
	}, c.Logger)

	c.Monitor = monitor.NewService(c.Ledger, c.Notifier, c.Users, c.Scheduler, monitor.Config{
		BotAddress:         c.Ledger.BotAddress(),
		PollInterval:       cfg.Monitor.PollInterval,
		DustThreshold:      decimal.NewFromFloat(cfg.Monitor.DustThreshold),
		AutoTransferDelay:  cfg.Monitor.AutoTransferDelay,
		AutoTransferRatio:  decimal.NewFromFloat(cfg.Monitor.AutoTransferRatio),
		DetailsDelay:       cfg.Monitor.DetailsDelay,
		HealthSchedule:     cfg.Monitor.HealthSchedule,
		SweepSchedule:      cfg.Monitor.SweepSchedule,
		PendingMaxAge:      cfg.Monitor.PendingMaxAge,
		InitialHealthDelay: cfg.Health.InitialDelay,
	}, c.Logger)

	c.Wizard = pending.NewWizard(pending.NewRegistry(), c.Ledger, c.Notifier, c.Users, c.Logger)

	c.Health = health.NewService(c.Monitor, c.Ledger, c.Notifier, c.Users, health.Config{
		BotAddress:        c.Ledger.BotAddress(),
		Network:           cfg.Solana.Network,
		LogDir:            cfg.Health.LogDir,
		BroadcastInterval: cfg.Health.BroadcastInterval,
		LatencyWarnMS:     cfg.Health.LatencyWarnMS,
		LatencyAdviseMS:   cfg.Health.LatencyAdviseMS,
		MemoryAdviseMB:    cfg.Health.MemoryAdviseMB,
		LowBalanceAdvise:  decimal.NewFromFloat(cfg.Health.LowBalanceAdvise),
	}, c.Logger)

	c.Monitor.AttachHealth(c.Health)
	c.Monitor.AttachSweeper(c.Wizard)

	c.Setup = setup.NewService(c.Users, c.Ledger, c.Notifier, c.Monitor, c.Scheduler, setup.DefaultConfig(), c.Logger)

	workerCfg := price_refresh.DefaultConfig()
	workerCfg.Interval = cfg.Pricing.RefreshInterval
	c.PriceWorker = price_refresh.NewWorker(c.Notifier, workerCfg, c.Logger)
}

func (c *Container) buildSurfaces() {
	cfg := c.Config

	botCfg := telegram.DefaultConfig()
	botCfg.Network = cfg.Solana.Network
	botCfg.PollInterval = cfg.Monitor.PollInterval
	c.Bot = telegram.NewBot(c.Chat, c.Notifier, c.Monitor, c.Ledger, c.Health, c.Setup, c.Wizard, c.Users, botCfg, c.Logger)

	if !cfg.Server.Enabled {
		return
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	core := handlers.NewCoreHandlers(c.Monitor, c.Health, c.Logger.Named("http"))
	c.Router = routes.SetupRoutes(core, routes.Options{
		JWTSecret:       cfg.JWT.Secret,
		RateLimitPerMin: cfg.Server.RateLimit,
	}, c.Logger.Named("http"))
}

// Close releases connections opened by the container
func (c *Container) Close() {
	if c.Scheduler != nil {
		if err := c.Scheduler.Shutdown(10 * time.Second); err != nil {
			c.Logger.Warn("Scheduler shutdown error", "error", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("Redis close error", "error", err)
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("Database close error", "error", err)
		}
	}
}

// Prime runs the start-of-day tasks that need the network
func (c *Container) Prime(ctx context.Context) {
	if err := c.Notifier.RefreshGroupAdmins(ctx); err != nil {
		c.Logger.Warn("Failed to prime group admin cache", "error", err)
	}
	if err := c.Notifier.RefreshPrice(ctx); err != nil {
		c.Logger.Warn("Initial price fetch failed, using default", "error", err)
	}
}
