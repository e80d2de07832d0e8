/**
 * @description
 * Entry point for the settlement service. It serves the Paystack webhook and the payment
 * API, and runs the settlement sweep and outbox flush on a cron schedule.
 *
 * @dependencies
 * - pgxpool for the database, go-redis and redislock for the shared rate limit and
 *   settlement locks, rabbitmq for outbound events, godotenv for local config.
 */
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bookpay/settlement-service/internal/api"
	"github.com/bookpay/settlement-service/internal/app"
	"github.com/bookpay/settlement-service/internal/config"
	"github.com/bookpay/settlement-service/internal/store"
	"github.com/bookpay/settlement-service/pkg/middleware"
	"github.com/bookpay/settlement-service/pkg/paystackclient"
	"github.com/bookpay/settlement-service/pkg/rabbitmq"
	"github.com/bsm/redislock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Load .env file for local development.
	envErr := godotenv.Load()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()
	if envErr != nil {
		logger.Info("no .env file found, using environment variables")
	}
	if missing := cfg.MissingSecrets(); len(missing) > 0 {
		logger.Error("required configuration is missing, webhooks will be rejected", zap.Strings("missing", missing))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repository, closeRepository := openRepository(ctx, cfg, logger)
	defer closeRepository()

	var limiter middleware.Limiter
	var locker app.SettlementLocker
	var localLimiter *middleware.WindowLimiter
	if cfg.RedisURL != "" {
		redisOptions, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("unable to parse Redis URL", zap.Error(err))
		}
		redisClient := redis.NewClient(redisOptions)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis is not reachable yet, limiter will fall back to local windows", zap.Error(err))
		}
		limiter = app.NewRedisWindowLimiter(redisClient, cfg.RedisKeyPrefix, cfg.WebhookRateLimitMax, cfg.WebhookRateLimitWindow(), logger)
		locker = app.NewRedisSettlementLocker(redislock.New(redisClient), cfg.RedisKeyPrefix, cfg.SettlementLease(), logger)
	} else {
		localLimiter = middleware.NewWindowLimiter(cfg.WebhookRateLimitMax, cfg.WebhookRateLimitWindow())
		limiter = localLimiter
		logger.Info("REDIS_URL not set, using per-instance rate limiting and no settlement lock")
	}

	var publisher rabbitmq.Publisher = &rabbitmq.EventProducerFallback{Logger: logger}
	if cfg.RabbitMQURL != "" {
		if producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, logger); err == nil {
			publisher = producer
		} else {
			logger.Warn("failed to connect to RabbitMQ, outbox events stay queued", zap.Error(err))
		}
	}
	defer publisher.Close()

	feePercent := decimal.NewFromFloat(cfg.PlatformFeePercent)
	paystack := paystackclient.NewClient(cfg.PaystackBaseURL, cfg.PaystackSecretKey, logger)
	audit := app.NewAuditLogger(repository, logger)
	reconciler := app.NewReconciler(repository, locker, audit, logger, app.ReconcilerConfig{
		FeePercent:     feePercent,
		Lease:          cfg.SettlementLease(),
		EventsExchange: cfg.EventsExchange,
	})
	dispatcher := app.NewDispatcher(reconciler, audit, logger, cfg.DefaultCurrency)
	initiator := app.NewPaymentInitiator(repository, paystack, logger, feePercent, cfg.DefaultCurrency, cfg.PaystackCallbackURL)
	verifier := app.NewPaymentVerifier(paystack, dispatcher, logger)
	sweeper := app.NewSweeper(repository, dispatcher, verifier, logger, cfg.PendingVerifyAfter())
	outbox := app.NewOutboxDispatcher(repository, publisher, logger)

	jobs := []app.Job{
		{Name: "settlement_sweep", Schedule: cfg.SettlementSweepSchedule, Run: sweeper.RunJob},
		{Name: "outbox_flush", Schedule: cfg.OutboxFlushSchedule, Run: outbox.RunJob},
	}
	if localLimiter != nil {
		jobs = append(jobs, app.Job{Name: "rate_limit_prune", Schedule: "@every 5m", Run: func() {
			if removed := localLimiter.Prune(); removed > 0 {
				logger.Debug("pruned expired rate limit windows", zap.Int("removed", removed))
			}
		}})
	}
	scheduler := app.NewScheduler(logger, jobs...)
	logger.Info("scheduler started", zap.Int("jobs", scheduler.Start()))

	webhook := api.NewWebhookHandler(api.WebhookConfig{
		Secret:         cfg.PaystackWebhookSecret,
		MissingSecrets: cfg.MissingSecrets(),
	}, limiter, dispatcher, audit, logger)
	router := api.NewRouter(api.RouterConfig{
		Webhook:       webhook,
		Payments:      api.NewPaymentHandlers(initiator, verifier, logger),
		Origins:       api.NewOriginAllowList(repository, cfg.FallbackOrigins(), cfg.CORSCacheTTL(), logger),
		AuthJWTSecret: cfg.AuthJWTSecret,
		Logger:        logger,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received, gracefully shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	select {
	case <-scheduler.Stop().Done():
	case <-shutdownCtx.Done():
		logger.Warn("scheduled jobs did not finish before shutdown timeout")
	}
	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	var logLevel zap.AtomicLevel
	switch strings.ToLower(level) {
	case "debug":
		logLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "warn":
		logLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		logLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	config := zap.NewProductionConfig()
	config.Level = logLevel
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// openRepository connects to Postgres, or falls back to an in-process store when no
// DATABASE_URL is configured.
func openRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, using in-memory repository")
		return store.NewMemoryRepository(), func() {}
	}

	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("unable to parse database URL", zap.Error(err))
	}
	dbConfig.MaxConns = 20
	dbConfig.MinConns = 2
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to stay compatible with transaction poolers.
	dbConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		logger.Fatal("unable to connect to database", zap.Error(err))
	}
	logger.Info("database connection established")
	return store.NewPostgresRepository(dbpool), dbpool.Close
}
