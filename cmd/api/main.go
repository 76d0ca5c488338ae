package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MotionAge/sn-sub000/internal/common"
	"github.com/MotionAge/sn-sub000/internal/config"
	"github.com/MotionAge/sn-sub000/internal/document"
	"github.com/MotionAge/sn-sub000/internal/events"
	"github.com/MotionAge/sn-sub000/internal/health"
	"github.com/MotionAge/sn-sub000/internal/lock"
	"github.com/MotionAge/sn-sub000/internal/notify"
	"github.com/MotionAge/sn-sub000/internal/obs"
	"github.com/MotionAge/sn-sub000/internal/payment"
	"github.com/MotionAge/sn-sub000/internal/ratelimit"
	"github.com/MotionAge/sn-sub000/internal/security"
	"github.com/MotionAge/sn-sub000/internal/settlement"
	"github.com/MotionAge/sn-sub000/internal/storage"
	"github.com/MotionAge/sn-sub000/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	oc := cfg.Observability
	logger := obs.NewLogger(oc.LogFormat, oc.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	obs.MustRegisterDomainMetrics(oc.MetricsNS, nil)

	tracingEnabled := oc.TracingEnabled
	if tracingEnabled {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   oc.ServiceName,
			Endpoint:      oc.TracingEndpoint,
			Exporter:      oc.TracingExporter,
			SamplingRatio: oc.TracingSample,
			Environment:   cfg.AppEnv,
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DBAutoMigrate {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
	}

	pool := connectDatabase(ctx, cfg, oc.ServiceName, logger)
	defer pool.Close()
	queries := store.New(pool)

	redisClient := connectRedis(ctx, cfg, oc.MetricsEnabled, logger)
	if redisClient != nil {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("close redis")
			}
		}()
	}

	uploader, err := storage.FromConfig(ctx, cfg.Storage, cfg.PublicBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise document storage")
	}

	var mailer common.EmailSender = common.NopEmailSender{}
	if smtp := notify.NewSMTPMailer(cfg.SMTP); smtp != nil {
		mailer = smtp
	} else {
		logger.Warn().Msg("SMTP_HOST not set, emails are discarded")
	}
	notifiers := []events.Notifier{
		notify.EmailNotifier{
			Mail:    mailer,
			Enabled: cfg.NotifyEmailEnabled,
			OrgName: cfg.Organization.Name,
		},
	}
	if writer := notify.NewKafkaWriter(cfg.Kafka); writer != nil {
		defer func() {
			if err := writer.Close(); err != nil {
				logger.Error().Err(err).Msg("close kafka writer")
			}
		}()
		notifiers = append(notifiers, notify.KafkaPublisher{Writer: writer})
	}
	bus := &events.Bus{Store: queries, Notifiers: notifiers}

	gatewayClient := payment.NewGatewayHTTPClient(cfg.Payments)
	providers := payment.ProvidersFromConfig(cfg.Payments, cfg.SiteBaseURL, gatewayClient, logger)
	orchestrator := payment.NewOrchestrator(cfg.SiteBaseURL+"/payment/instructions", logger, providers...)

	org := cfg.Organization
	generator := &document.Generator{
		Store: uploader,
		Org: document.Organization{
			Name:            org.Name,
			Transliteration: org.Transliteration,
			Address:         org.Address,
			Phone:           org.Phone,
			Email:           org.Email,
			Website:         org.Website,
			VerifyURL:       org.VerifyURL,
		},
		Compress: cfg.DocumentCompress,
		Logger:   obs.Component(logger, "document"),
	}

	settler := &settlement.Service{
		Verifier: orchestrator,
		Store:    queries,
		Docs:     generator,
		Events:   bus,
		LockTTL:  cfg.SettlementLockTTL,
		Logger:   obs.Component(logger, "settlement"),
	}
	if redisClient != nil {
		settler.Lock = lock.Locker{R: redisClient, Prefix: "lock:"}
	}

	validate := common.NewValidator()
	paymentLimiter, err := ratelimit.New(cfg.PaymentRateLimit, redisClient, "ratelimit:payments")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}

	var files http.Handler
	if mem, ok := uploader.(*storage.MemoryStore); ok {
		files = mem
	}

	router := newRouter(routes{
		logger:         logger,
		cfg:            cfg,
		tracing:        tracingEnabled,
		metrics:        oc.MetricsEnabled,
		metricsBuckets: oc.MetricsBuckets,
		payments: payment.NewHandler(payment.Handler{
			Orchestrator:    orchestrator,
			Store:           queries,
			CallbackBaseURL: cfg.PublicBaseURL + "/api/v1/payments/callback",
			Validate:        validate,
			Logger:          obs.Component(logger, "payment.http"),
		}),
		settlement: settlement.NewHandler(settlement.Handler{
			Svc:         settler,
			SiteBaseURL: cfg.SiteBaseURL,
			Validate:    validate,
			Logger:      obs.Component(logger, "settlement.http"),
		}),
		documents: document.NewHandler(document.Handler{
			Svc:      generator,
			Validate: validate,
			Logger:   obs.Component(logger, "document.http"),
		}),
		health: health.Handler{
			Checker:      health.Deps{DB: pool, Redis: redisClient},
			DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
			RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		},
		idem: common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL},
		limiter: ratelimit.Handler{
			Limiter: paymentLimiter,
			OnError: func(err error) { logger.Warn().Err(err).Msg("rate limiter unavailable") },
		},
		headers: security.Headers{
			EnableHSTS:  cfg.IsProduction(),
			FormActions: payment.FormOrigins(providers...),
		},
		bodyLimit: security.BodyLimit{Max: int64(envInt("HTTP_MAX_BODY_BYTES", 1<<20))},
		files:     files,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	case <-ctx.Done():
		health.SetReady(false)
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("graceful shutdown")
		}
	}
}

func connectDatabase(ctx context.Context, cfg *config.Config, appName string, logger zerolog.Logger) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = appName

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

// connectRedis returns nil when REDIS_URL is unset. Redis backs idempotency
// keys, the settlement lock and shared rate limits.
func connectRedis(ctx context.Context, cfg *config.Config, metrics bool, logger zerolog.Logger) *redis.Client {
	if strings.TrimSpace(cfg.RedisURL) == "" {
		logger.Warn().Msg("REDIS_URL not set, running without idempotency keys or settlement lock")
		return nil
	}
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metrics {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
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

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
