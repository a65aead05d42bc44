// Package main is the entrypoint for the mailroute API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/mailroute/mailroute/internal/analytics"
	"github.com/mailroute/mailroute/internal/auth"
	"github.com/mailroute/mailroute/internal/cache"
	"github.com/mailroute/mailroute/internal/config"
	"github.com/mailroute/mailroute/internal/handler"
	"github.com/mailroute/mailroute/internal/mailer"
	"github.com/mailroute/mailroute/internal/metrics"
	"github.com/mailroute/mailroute/internal/middleware"
	"github.com/mailroute/mailroute/internal/quota"
	"github.com/mailroute/mailroute/internal/repository"
	"github.com/mailroute/mailroute/internal/secrets"
	"github.com/mailroute/mailroute/internal/server"
	"github.com/mailroute/mailroute/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return errors.New("connect to database")
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error("failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return errors.New("connect to redis")
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	box, err := secrets.NewBox(cfg.SMTPSecretKey)
	if err != nil {
		return fmt.Errorf("smtp secret key: %w", err)
	}

	recorder := metrics.NewPrometheus()

	// Stores
	templates := repository.NewTemplateRepository(repo, cfg.TemplateCacheTTL)
	smtpConfigs := repository.NewSMTPConfigRepository(repo, box)
	sendEvents := repository.NewSendEventRepository(repo)
	tracker := quota.NewTracker(newQuotaStore(cfg, repo, cacheClient.Client()), cfg.QuotaWindow)

	// Services
	authn := service.NewAuthenticator(repo, repo, cacheClient, logger, recorder)
	dispatcherCfg := service.DispatcherConfig{
		Auth:              authn,
		Templates:         templates,
		SMTPConfigs:       smtpConfigs,
		Quota:             tracker,
		Transport:         newTransport(cfg, logger),
		Metrics:           recorder,
		Logger:            logger,
		DefaultDailyLimit: cfg.DefaultDailyLimit,
		SMTPTimeout:       cfg.SMTPTimeout,
	}
	var stats service.StatsReader
	if cfg.AnalyticsEnabled {
		dispatcherCfg.Events = analytics.NewPublisher(cacheClient.Client(), logger, recorder)
		stats = sendEvents
	}
	dispatcher := service.NewDispatcher(dispatcherCfg)

	keyEnv := auth.EnvTest
	if cfg.IsProduction() {
		keyEnv = auth.EnvLive
	}

	security := middleware.DefaultSecurityConfig()
	security.IsDevelopment = cfg.IsDevelopment()
	security.MaxRequestBodySize = cfg.MaxRequestBodySize

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	router := handler.NewRouter(handler.RouterConfig{
		Logger:   logger,
		Recorder: recorder,
		Security: security,
		CORS:     cors,
		Auth: middleware.AuthConfig{
			Logger:        logger,
			Authenticator: authn,
		},
		RateLimit: middleware.RateLimitConfig{
			Logger:      logger,
			Limiter:     cacheClient,
			APIEnabled:  cfg.RateLimitAPIEnabled,
			APIRPM:      cfg.RateLimitAPIRPM,
			APIBurst:    cfg.RateLimitAPIBurst,
			SendEnabled: cfg.RateLimitSendEnabled,
			SendRPS:     cfg.RateLimitSendRPS,
			SendBurst:   cfg.RateLimitSendBurst,
		},
		Health: handler.NewHealthHandler(map[string]handler.HealthChecker{
			"postgres": repo,
			"redis":    cacheClient,
		}),
		Metrics:  handler.NewMetricsHandler(recorder.Handler()),
		Send:     handler.NewSendHandler(dispatcher, logger),
		APIKeys:  handler.NewAPIKeyHandler(logger, service.NewAPIKeyService(repo, authn, keyEnv, logger)),
		Template: handler.NewTemplateHandler(logger, service.NewTemplateService(templates)),
		SMTP:     handler.NewSMTPHandler(logger, service.NewSMTPService(smtpConfigs)),
		Account:  handler.NewAccountHandler(logger, service.NewUsageService(repo, tracker, stats, cfg.DefaultDailyLimit)),
	})

	srv := server.New(router, server.Options{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	if cfg.AnalyticsEnabled {
		worker := analytics.NewWorker(cacheClient.Client(), sendEvents, logger, analytics.NewConsumerID(), recorder)
		// The worker outlives the signal so it can drain events published
		// while in-flight requests finish; Shutdown stops it.
		go func() {
			if err := worker.Run(context.WithoutCancel(ctx)); err != nil {
				logger.Error("analytics worker stopped", "error", err)
			}
		}()
		srv.OnShutdown("analytics_worker", worker.Shutdown)
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"quota_backend", cfg.QuotaBackend,
		"quota_window", cfg.QuotaWindow.String(),
		"analytics", cfg.AnalyticsEnabled,
	)

	return srv.Run(ctx)
}

func newQuotaStore(cfg *config.Config, repo *repository.Repository, rdb *redis.Client) quota.Store {
	switch cfg.QuotaBackend {
	case config.QuotaBackendPostgres:
		return quota.NewPostgresStore(repo.Pool())
	case config.QuotaBackendMemory:
		return quota.NewMemoryStore()
	default:
		return quota.NewRedisStore(rdb)
	}
}

func newTransport(cfg *config.Config, logger *slog.Logger) mailer.Transport {
	t := mailer.NewSMTPTransport(logger)
	t.InsecureSkipVerify = cfg.IsDevelopment()
	return t
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

// redactURL drops the password from a connection URL.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

// sanitizeError removes connection secrets from driver error messages.
func sanitizeError(err error, sensitive ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range sensitive {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
