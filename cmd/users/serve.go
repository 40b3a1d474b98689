// AngelaMos | 2026
// serve.go

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/carterperez-dev/templates/users-service/internal/admin"
	"github.com/carterperez-dev/templates/users-service/internal/auth"
	"github.com/carterperez-dev/templates/users-service/internal/broker"
	"github.com/carterperez-dev/templates/users-service/internal/config"
	"github.com/carterperez-dev/templates/users-service/internal/core"
	"github.com/carterperez-dev/templates/users-service/internal/events"
	"github.com/carterperez-dev/templates/users-service/internal/health"
	"github.com/carterperez-dev/templates/users-service/internal/metrics"
	"github.com/carterperez-dev/templates/users-service/internal/middleware"
	"github.com/carterperez-dev/templates/users-service/internal/notify"
	"github.com/carterperez-dev/templates/users-service/internal/server"
	"github.com/carterperez-dev/templates/users-service/internal/user"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd, opts, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(
				cmd.Context(),
				syscall.SIGINT,
				syscall.SIGTERM,
			)
			defer stop()

			return runServe(ctx, cfg, logger)
		},
	}

	flags := cmd.Flags()
	flags.String("host", "0.0.0.0", "listen host")
	flags.Int("port", 8080, "listen port")
	flags.Bool("auto-migrate", false, "apply pending migrations before serving")
	flags.String("mail-driver", config.MailDriverLog, "mail driver (log, mailgun, queue)")

	return cmd
}

//nolint:funlen,gocognit // bootstrap code is inherently verbose
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	startedAt := time.Now()
	logger.Info("starting application",
		"name", cfg.App.Name,
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
	)

	var telemetry *core.Telemetry
	if cfg.Otel.Enabled {
		tel, telErr := core.NewTelemetry(ctx, cfg.Otel, cfg.App)
		switch {
		case telErr != nil:
			logger.Warn("failed to initialize telemetry", "error", telErr)
		case tel != nil:
			telemetry = tel
			logger.Info("OpenTelemetry tracer initialized",
				"endpoint", cfg.Otel.Endpoint,
			)
		}
	}

	if cfg.Database.AutoMigrate {
		if err := migrateUp(cfg.Database.URL, logger); err != nil {
			return err
		}
	}

	db, err := core.NewDatabase(ctx, cfg.Database)
	if err != nil {
		return err
	}
	logger.Info("database connected",
		"max_open_conns", cfg.Database.MaxOpenConns,
		"max_idle_conns", cfg.Database.MaxIdleConns,
	)

	redis, err := core.NewRedis(ctx, cfg.Redis)
	if err != nil {
		return err
	}
	if redis.Enabled() {
		logger.Info("redis connected", "pool_size", cfg.Redis.PoolSize)
	} else {
		logger.Info("redis not configured, rate limits are per process")
	}

	var (
		registry *prometheus.Registry
		recorder *metrics.Metrics
	)
	if cfg.Metrics.Enabled {
		registry = metrics.NewRegistry()
		recorder = metrics.NewMetrics(registry)
	}

	var (
		mq           *broker.Broker
		jobPublisher notify.JobPublisher
		statusEvents user.StatusPublisher
	)
	if cfg.Broker.Enabled() {
		mq, err = broker.Dial(ctx, cfg.Broker, logger)
		if err != nil {
			return err
		}
		if err := mq.DeclareQueue(cfg.Broker.EmailQueue); err != nil {
			return err
		}
		if err := mq.DeclareExchange(cfg.Broker.EventsExchange, "topic"); err != nil {
			return err
		}
		jobPublisher = mq
		statusEvents = events.NewPublisher(mq, cfg.Broker.EventsExchange, recorder)
		logger.Info("broker connected",
			"email_queue", cfg.Broker.EmailQueue,
			"events_exchange", cfg.Broker.EventsExchange,
		)
	} else {
		statusEvents = events.NewLogPublisher(logger)
	}

	sender, err := notify.NewSender(cfg.Mail, cfg.Broker, jobPublisher, logger)
	if err != nil {
		return err
	}
	sender = notify.Instrumented(sender, cfg.Mail.Driver, recorder)

	hasher, err := auth.NewPasswordHasher(cfg.Password)
	if err != nil {
		return err
	}

	jwtManager, err := auth.NewJWTManager(cfg.JWT)
	if err != nil {
		return err
	}
	logger.Info("JWT manager initialized",
		"algorithm", cfg.JWT.Algorithm,
		"key_id", jwtManager.GetKeyID(),
		"access_ttl", jwtManager.AccessTokenTTL(),
		"refresh_ttl", jwtManager.RefreshTokenTTL(),
	)

	userRepo := user.NewRepository(db.DB)
	userSvc := user.NewService(userRepo, hasher, statusEvents, logger)
	userHandler := user.NewHandler(userSvc)

	authSvc := auth.NewService(auth.ServiceConfig{
		Store:  userRepo,
		Hasher: hasher,
		Tokens: jwtManager,
		Sender: sender,
		Settings: auth.Settings{
			ResetTokenTTL:        cfg.Tokens.ResetTokenExpire,
			ConfirmationTokenTTL: cfg.Tokens.ConfirmationTokenExpire,
			ConfirmationBaseURL:  cfg.Tokens.ConfirmationBaseURL,
			ResetBaseURL:         cfg.Tokens.ResetBaseURL,
		},
		Metrics: recorder,
		Logger:  logger,
	})
	authHandler := auth.NewHandler(authSvc)

	checks := []health.Check{{Name: "database", Checker: db}}
	if redis.Enabled() {
		checks = append(checks, health.Check{Name: "redis", Checker: redis})
	}
	if mq != nil {
		checks = append(checks, health.Check{Name: "broker", Checker: mq})
	}
	healthHandler := health.NewHandler(checks...)

	deps := []admin.Dependency{{Name: "database", Ping: db.Ping, Pool: admin.DatabasePool(db.Stats)}}
	if redis.Enabled() {
		deps = append(deps, admin.Dependency{
			Name: "redis",
			Ping: redis.Ping,
			Pool: admin.RedisPool(redis.PoolStats),
		})
	}
	if mq != nil {
		deps = append(deps, admin.Dependency{Name: "broker", Ping: mq.Ping})
	}
	adminHandler := admin.NewHandler(admin.HandlerConfig{
		Users:        userSvc,
		Dependencies: deps,
		StartedAt:    startedAt,
	})

	srv := server.New(server.Config{
		ServerConfig:  cfg.Server,
		HealthHandler: healthHandler,
		Logger:        logger,
	})

	ipKeys := middleware.IPKeys{TrustProxy: cfg.RateLimit.TrustProxy}

	globalLimiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Scope: "global",
		Limit: middleware.PerWindow(
			cfg.RateLimit.Requests,
			cfg.RateLimit.Burst,
			cfg.RateLimit.Window,
		),
		KeyFunc:    ipKeys.ByIP,
		FailOpen:   true,
		BypassFunc: operationalPath(cfg.Metrics.Path),
		OnLimited:  onLimited(recorder),
	})
	defer globalLimiter.Close()

	authLimiter := middleware.NewRateLimiter(redis.Client, middleware.RateLimitConfig{
		Scope: "auth",
		Limit: middleware.PerWindow(
			cfg.RateLimit.AuthRequests,
			cfg.RateLimit.AuthBurst,
			cfg.RateLimit.Window,
		),
		KeyFunc:   ipKeys.ByIPAndEndpoint,
		FailOpen:  true,
		OnLimited: onLimited(recorder),
	})
	defer authLimiter.Close()

	router := srv.Router()

	router.Use(middleware.RequestID)
	router.Use(middleware.Tracing)
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recoverer(logger))
	if recorder != nil {
		router.Use(middleware.Metrics(recorder))
	}
	router.Use(globalLimiter.Handler)
	router.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	router.Use(middleware.CORS(cfg.CORS))

	healthHandler.RegisterRoutes(router)

	if jwtManager.PublishesJWKS() {
		router.Get("/.well-known/jwks.json", jwtManager.GetJWKSHandler())
	}
	if registry != nil {
		router.Method(http.MethodGet, cfg.Metrics.Path, metrics.Handler(registry))
	}

	authenticator := middleware.Authenticator(jwtManager)
	adminOnly := middleware.RequireRole(user.RoleAdmin.String())

	router.Route("/api", func(r chi.Router) {
		authHandler.RegisterRoutes(r, authLimiter.Handler)
		userHandler.RegisterRoutes(r, authenticator, adminOnly)
		adminHandler.RegisterRoutes(r, authenticator, adminOnly)
	})

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		cfg.Server.ShutdownTimeout+cfg.Server.DrainDelay+5*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx, cfg.Server.DrainDelay); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}

	if mq != nil {
		if err := mq.Close(); err != nil {
			logger.Error("broker close error", "error", err)
		}
	}

	if err := redis.Close(); err != nil {
		logger.Error("redis close error", "error", err)
	}

	if err := db.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("application stopped")
	return nil
}

func migrateUp(databaseURL string, logger *slog.Logger) error {
	m, err := core.NewMigrator(databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			logger.Warn("migrator close error", "error", closeErr)
		}
	}()

	if err := m.Up(); err != nil {
		return err
	}

	version, _, err := m.Version()
	if err != nil {
		return err
	}
	logger.Info("database migrated", "version", version)
	return nil
}

// operationalPath exempts probes and scrapes from the global limit.
func operationalPath(metricsPath string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		switch r.URL.Path {
		case "/healthz", "/livez", "/readyz", metricsPath:
			return true
		}
		return strings.HasPrefix(r.URL.Path, "/.well-known/")
	}
}

func onLimited(recorder *metrics.Metrics) middleware.LimitedFunc {
	return func(w http.ResponseWriter, r *http.Request, scope string, res *redis_rate.Result) {
		recorder.RecordRateLimited(scope)
		slog.WarnContext(r.Context(), "rate limited",
			"scope", scope,
			"request_id", middleware.GetRequestID(r.Context()),
			"path", r.URL.Path,
		)
		middleware.WriteRateLimitExceeded(w, res)
	}
}
