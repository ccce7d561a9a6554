// Package main provides the entry point for the social publisher service
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/social-publisher/app/handlers"
	"github.com/amirphl/social-publisher/app/middleware"
	"github.com/amirphl/social-publisher/app/router"
	"github.com/amirphl/social-publisher/app/scheduler"
	"github.com/amirphl/social-publisher/app/services"
	businessflow "github.com/amirphl/social-publisher/business_flow"
	"github.com/amirphl/social-publisher/config"
	"github.com/amirphl/social-publisher/models"
	"github.com/amirphl/social-publisher/repository"
	"github.com/amirphl/social-publisher/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	stopFuncs []func()
	closers   []io.Closer
}

func main() {
	log.Println("Starting social publisher...")

	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	app, err := initializeApplication(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", address)

		if err := app.server.Listen(address); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-sigChan
	log.Println("Shutting down gracefully...")

	// Stop the scheduler first so in-flight publications finish while the store is still open
	for _, fn := range app.stopFuncs {
		fn()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}

	for _, c := range app.closers {
		if err := c.Close(); err != nil {
			log.Printf("Error closing resource: %v", err)
		}
	}

	log.Println("Server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	gormCfg := &gorm.Config{}
	if cfg.SlowQueryLog {
		gormCfg.Logger = gormlogger.New(log.New(os.Stdout, "gorm ", log.LstdFlags), gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("Database connection established with %d max open connections, %d max idle connections",
		cfg.MaxOpenConns, cfg.MaxIdleConns)

	if cfg.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			return nil, err
		}
		log.Println("Database schema migrated")
	}

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity.
// A nil client means the insights cache is disabled.
func initializeCache(cfg config.CacheConfig) (*redis.Client, error) {
	if !cfg.Enabled || cfg.RedisURL == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Printf("Redis connection established (db=%d)", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis to surface connectivity issues.
// The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					log.Printf("Redis healthcheck failed: %v", err)
				}
				c()
			}
		}
	}()
	return cancel
}

// initializePublishers registers one gateway per supported platform
func initializePublishers(cfg config.FacebookConfig, clock utils.Clock) *services.PublisherRegistry {
	var facebook services.PlatformPublisher
	switch cfg.Provider {
	case "mock":
		log.Println("Facebook provider is mock; nothing will reach the Graph API")
		facebook = services.NewMockPublisher(string(models.PlatformFacebook))
	default:
		facebook = services.NewFacebookClient(&cfg, clock)
	}
	return services.NewPublisherRegistry(facebook)
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig) (*Application, error) {
	var (
		stopFuncs []func()
		closers   []io.Closer
	)

	clock := utils.RealClock{}

	db, err := initializeDatabase(cfg.Database)
	if err != nil {
		return nil, err
	}

	rc, err := initializeCache(cfg.Cache)
	if err != nil {
		// Insights can still be served from the gateway
		log.Printf("Cache disabled: %v", err)
		rc = nil
	}
	if rc != nil {
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.CleanupInterval))
		closers = append(closers, rc)
	}

	appLogger, appLogCloser, err := scheduler.NewLogger(cfg.Logging, "publisher ")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	closers = append(closers, appLogCloser)

	// Repositories
	userRepo := repository.NewUserRepository(db)
	accountRepo := repository.NewSocialAccountRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	postRepo := repository.NewPostRepository(db)
	tx := repository.NewTransactor(db)

	// Services
	publishers := initializePublishers(cfg.Facebook, clock)

	tokenService, err := services.NewTokenService(
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token service: %w", err)
	}
	log.Printf("Token service initialized with issuer: %s, audience: %s", cfg.JWT.Issuer, cfg.JWT.Audience)

	tokenCipher, err := services.NewTokenCipher(cfg.Security.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token cipher: %w", err)
	}

	// Flows
	resolver := businessflow.NewCredentialResolver(accountRepo, userRepo, cfg.Facebook.DefaultPageID, tokenCipher, clock)

	campaignFlow := businessflow.NewCampaignFlow(campaignRepo, userRepo)

	postFlow := businessflow.NewPostFlow(postRepo, campaignRepo, resolver, publishers, clock)

	accountFlow := businessflow.NewSocialAccountFlow(accountRepo, userRepo, tx, tokenCipher, publishers, clock)

	analyticsFlow := businessflow.NewAnalyticsFlow(
		campaignRepo,
		resolver,
		publishers,
		rc,
		cfg.Cache,
		cfg.Analytics,
		clock,
		appLogger,
	)

	publicationFlow := businessflow.NewPublicationFlow(
		campaignRepo,
		postRepo,
		resolver,
		publishers,
		tx,
		cfg.Scheduler,
		clock,
		appLogger,
	)

	// Handlers
	checks := []handlers.HealthCheck{handlers.DatabaseCheck(db)}
	if rc != nil {
		checks = append(checks, handlers.RedisCheck(rc))
	}

	authMiddleware := middleware.NewAuthMiddleware(tokenService)

	appRouter := router.NewFiberRouter(cfg, router.Handlers{
		Campaign:  handlers.NewCampaignHandler(campaignFlow, publicationFlow),
		Post:      handlers.NewPostHandler(postFlow),
		Analytics: handlers.NewAnalyticsHandler(analyticsFlow),
		Account:   handlers.NewAccountHandler(accountFlow),
		Health:    handlers.NewHealthHandler(cfg.Deployment, checks...),
	}, authMiddleware)

	if cfg.Scheduler.Enabled {
		// Shares the rotating writer so both loggers rotate the same file together
		schedLogger := log.New(appLogger.Writer(), "scheduler ", appLogger.Flags())
		sched := scheduler.NewPublicationScheduler(publicationFlow, cfg.Scheduler, clock, schedLogger)
		stopFuncs = append(stopFuncs, sched.Start(context.Background()))
		log.Printf("Publication scheduler started (interval=%s, concurrency=%d)", cfg.Scheduler.Interval, cfg.Scheduler.Concurrency)
	}

	fiberRouter := appRouter.(*router.FiberRouter)
	return &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		stopFuncs: stopFuncs,
		closers:   closers,
	}, nil
}
