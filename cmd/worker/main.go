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

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/liftmode/netcents-gateway/internal/config"
	"github.com/liftmode/netcents-gateway/internal/gateway"
	"github.com/liftmode/netcents-gateway/internal/lock"
	"github.com/liftmode/netcents-gateway/internal/notify"
	"github.com/liftmode/netcents-gateway/internal/obs"
	"github.com/liftmode/netcents-gateway/internal/order"
	"github.com/liftmode/netcents-gateway/internal/payment"
	"github.com/liftmode/netcents-gateway/internal/recon"
	"github.com/liftmode/netcents-gateway/internal/resilience"
	"github.com/liftmode/netcents-gateway/internal/secrets"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "netcents"), nil)

	if !cfg.AsyncSyncEnabled || !cfg.GatewayActive {
		logger.Info().
			Bool("async_sync_enabled", cfg.AsyncSyncEnabled).
			Bool("gateway_active", cfg.GatewayActive).
			Msg("reconciliation disabled, worker exiting")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool := mustInitDatabase(initCtx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(initCtx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	decrypter := mustInitDecrypter(cfg, logger)
	alerter := buildAlerter(cfg, logger)

	gatewayClient := &gateway.Client{
		BaseURL: cfg.GatewayBaseURL,
		Credentials: &gateway.CredentialSource{
			Mode:           gateway.Mode(cfg.GatewayMode),
			TestAccountID:  cfg.TestAccountID,
			TestAuthSecret: cfg.TestAuthSecret,
			LiveAccountID:  cfg.LiveAccountID,
			LiveAuthSecret: cfg.LiveAuthSecret,
			Decrypter:      decrypter,
		},
		HTTP:    gateway.NewHTTPClient(cfg.GatewayConnectTimeout, cfg.GatewayRequestTimeout),
		Logger:  logger.With().Str("component", "gateway").Logger(),
		Alerter: alerter,
	}

	method := &payment.Method{
		Gateway:       gatewayClient,
		Validator:     gateway.Validator{Logger: logger, Alerter: alerter},
		Logger:        logger.With().Str("component", "payment").Logger(),
		RefundEnabled: cfg.CanRefund,
	}

	store := &order.PGStore{Pool: pool}
	locker := lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff}

	sweeper := &recon.Service{
		Orders:      store,
		Status:      method,
		Transitions: &order.Transitioner{Store: store, Logger: logger},
		Locker:      locker,
		Logger:      logger.With().Str("component", "recon").Logger(),
		Method:      payment.MethodCode,
		BatchLimit:  int32(cfg.SyncBatchLimit),
		LockTTL:     cfg.LockTTL,
	}
	handler := &recon.TaskHandler{
		Service: sweeper,
		Locker:  locker,
		LockTTL: cfg.SyncInterval,
		Logger:  logger,
	}

	redisOpt := asynqRedisOpt(cfg.RedisURL)
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{"default": 1},
	})
	mux := asynq.NewServeMux()
	handler.Register(mux)

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	spec := fmt.Sprintf("@every %s", cfg.SyncInterval)
	if _, err := scheduler.Register(spec, recon.NewSweepTask()); err != nil {
		logger.Fatal().Err(err).Msg("register sweep schedule")
	}

	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	go func() {
		<-ctx.Done()
		scheduler.Shutdown()
		srv.Shutdown()
	}()

	logger.Info().Str("interval", cfg.SyncInterval.String()).Msg("worker starting")
	if err := srv.Run(mux); err != nil {
		logger.Fatal().Err(err).Msg("worker stopped with error")
	}
	logger.Info().Msg("worker shutdown complete")
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "netcents-gateway-worker"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func mustInitDecrypter(cfg *config.Config, logger zerolog.Logger) secrets.Decrypter {
	if cfg.SecretsKey == "" {
		return secrets.Plaintext{}
	}
	dec, err := secrets.NewAESGCM(cfg.SecretsKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise secrets decrypter")
	}
	return dec
}

func buildAlerter(cfg *config.Config, logger zerolog.Logger) notify.Alerter {
	if !cfg.AlertEnabled {
		return notify.Nop{}
	}
	alertLogger := logger.With().Str("component", "alerts").Logger()
	return &notify.WebhookAlerter{
		URL: cfg.AlertWebhookURL,
		HTTP: &resilience.HTTPClient{
			Client:      &http.Client{},
			Breaker:     resilience.NewBreaker(5, 0.5, 30*time.Second),
			BaseBackoff: 200 * time.Millisecond,
			MaxAttempts: 3,
			Jitter:      0.2,
			Timeout:     5 * time.Second,
			Target:      "alert-webhook",
			Logger:      &alertLogger,
		},
		Logger: alertLogger,
	}
}

func asynqRedisOpt(redisURL string) asynq.RedisClientOpt {
	if opt, err := redis.ParseURL(redisURL); err == nil {
		return asynq.RedisClientOpt{
			Addr:     opt.Addr,
			Username: opt.Username,
			Password: opt.Password,
			DB:       opt.DB,
		}
	}
	return asynq.RedisClientOpt{Addr: redisURL}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
