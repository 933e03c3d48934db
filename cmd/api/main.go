package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/liftmode/netcents-gateway/internal/checkout"
	"github.com/liftmode/netcents-gateway/internal/common"
	"github.com/liftmode/netcents-gateway/internal/config"
	"github.com/liftmode/netcents-gateway/internal/gateway"
	"github.com/liftmode/netcents-gateway/internal/health"
	"github.com/liftmode/netcents-gateway/internal/lock"
	"github.com/liftmode/netcents-gateway/internal/notify"
	"github.com/liftmode/netcents-gateway/internal/obs"
	"github.com/liftmode/netcents-gateway/internal/order"
	"github.com/liftmode/netcents-gateway/internal/payment"
	"github.com/liftmode/netcents-gateway/internal/ratelimit"
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
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "netcents")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "netcents-gateway-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0),
			Environment:   cfg.AppEnv,
			GatewayMode:   string(cfg.GatewayMode),
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool := mustInitDatabase(initCtx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(initCtx, cfg, logger, metricsEnabled)
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
	transitions := &order.Transitioner{Store: store, Logger: logger}
	locker := lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff}

	checkoutHandler := &checkout.Handler{Svc: &checkout.Service{
		Orders:      store,
		Processor:   method,
		Transitions: transitions,
		Locker:      locker,
		Validate:    validator.New(),
		Logger:      logger.With().Str("component", "checkout").Logger(),
		LockTTL:     cfg.LockTTL,
	}}

	limiter, err := ratelimit.New(redisClient, cfg.RateLimitPerMinute)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}
	limiter.OnError = func(err error) {
		logger.Warn().Err(err).Msg("rate limiter degraded")
	}

	asynqClient := asynq.NewClient(asynqRedisOpt(cfg.RedisURL))
	defer func() { _ = asynqClient.Close() }()

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, nil, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker: health.Probes{Pool: pool, Redis: redisClient},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Group(func(g chi.Router) {
			g.Use(limiter.Middleware)
			checkoutHandler.Mount(g)
		})
		v.Post("/admin/recon/sweep", triggerSweep(asynqClient, logger))
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown http server")
		}
	}()

	logger.Info().Str("addr", srv.Addr).Str("mode", string(cfg.GatewayMode)).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
	logger.Info().Msg("server shutdown complete")
}

// triggerSweep lets operators kick a reconciliation run without
// waiting for the schedule.
func triggerSweep(client *asynq.Client, logger zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := client.EnqueueContext(r.Context(), recon.NewSweepTask())
		if err != nil {
			logger.Error().Err(err).Msg("enqueue sweep")
			common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to enqueue sweep", nil)
			return
		}
		common.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]string{"taskId": info.ID}})
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "netcents-gateway-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metricsEnabled bool) *redis.Client {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(opts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
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

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
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

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}
