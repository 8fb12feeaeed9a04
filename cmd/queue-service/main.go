package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"tablequeue/queue-service/internal/auth"
	"tablequeue/queue-service/internal/clock"
	"tablequeue/queue-service/internal/config"
	"tablequeue/queue-service/internal/guard"
	"tablequeue/queue-service/internal/httpapi"
	"tablequeue/queue-service/internal/logger"
	"tablequeue/queue-service/internal/notify"
	"tablequeue/queue-service/internal/queue"
	"tablequeue/queue-service/internal/scheduler"
	"tablequeue/queue-service/internal/store/postgres"
	"tablequeue/queue-service/internal/telemetry"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const serviceName = "queue-service"

func main() {
	dotenvErr := config.LoadDotenv(".env")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logr.Sync() }()
	if dotenvErr != nil && !errors.Is(dotenvErr, os.ErrNotExist) {
		logr.Warn("could not load .env", zap.Error(dotenvErr))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing := telemetry.Setup(ctx, serviceName, cfg.OTLPEndpoint, logr)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logr.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		logr.Fatal("db migrate", zap.Error(err))
	}
	st := postgres.NewStore(pool, postgres.Options{LockTimeout: cfg.LockTimeout()})
	clk := clock.NewSystem(cfg.Location)

	var cooldown queue.Cooldown
	var revoker auth.Revoker
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		g := guard.New(redisClient, cfg.VerificationCooldown())
		if err := g.Ping(ctx); err != nil {
			logr.Warn("redis unreachable, cooldowns and logout fail open until it returns", zap.Error(err))
		}
		cooldown = g
		revoker = g
	} else {
		logr.Info("REDIS_ADDR not set, verification cooldown and token revocation disabled")
	}

	provider := notify.NewProvider(cfg.NotifyProvider, notify.ProviderOptions{
		WebhookURL:   cfg.NotifyWebhookURL,
		WebhookToken: cfg.NotifyWebhookToken,
		KafkaBrokers: cfg.KafkaBrokers,
		KafkaTopic:   cfg.KafkaTopic,
	}, logr)
	dispatcher := notify.NewDispatcher(provider, st, logr.Named("notify"), notify.Options{
		Workers:   cfg.NotifyWorkers,
		QueueSize: cfg.NotifyQueueSize,
	})
	dispatcher.Start(ctx)

	authService := auth.NewService(st, auth.Options{
		Secret:  cfg.JWTSecret,
		TTL:     cfg.TokenTTL(),
		Clock:   clk,
		Revoker: revoker,
		Logger:  logr,
	})
	if cfg.BootstrapAdminUsername != "" {
		created, err := authService.EnsureBootstrapAdmin(ctx, cfg.BootstrapAdminUsername, cfg.BootstrapAdminPassword)
		if err != nil {
			logr.Fatal("bootstrap admin", zap.Error(err))
		}
		if created {
			logr.Info("bootstrap admin created", zap.String("username", cfg.BootstrapAdminUsername))
		}
	}

	engine := queue.NewEngine(st, clk, logr.Named("queue"), queue.Options{
		StoreTimeout:    cfg.StoreTimeout(),
		NoShowThreshold: cfg.NoShowThreshold,
		VerificationTTL: cfg.VerificationTTL(),
		ExposeCodes:     !cfg.IsProduction(),
		Notifier:        dispatcher,
		Cooldown:        cooldown,
	})

	jobs, err := scheduler.New(ctx, engine, logr.Named("scheduler"), scheduler.Options{
		Location:         cfg.Location,
		RolloverInterval: cfg.RolloverInterval(),
		Retention:        cfg.VerificationRetention(),
	})
	if err != nil {
		logr.Fatal("scheduler", zap.Error(err))
	}
	jobs.Start()

	handler := httpapi.NewHandler(engine, authService, httpapi.Options{
		Logger: logr.Named("http"),
		RateLimit: httpapi.RateLimitConfig{
			IPPerMinute:    cfg.RateLimitPerMinute,
			IPBurst:        cfg.RateLimitBurst,
			PhonePerMinute: cfg.PhoneRateLimitPerMinute,
			PhoneBurst:     cfg.PhoneRateLimitBurst,
		},
		Health: func(ctx context.Context) error {
			return pool.Ping(ctx)
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(handler.Routes(), serviceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logr.Info("queue-service listening", zap.String("addr", server.Addr), zap.String("timezone", cfg.Location.String()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("shutdown error", zap.Error(err))
	}
	if err := jobs.Shutdown(); err != nil {
		logr.Error("scheduler shutdown", zap.Error(err))
	}
	if err := dispatcher.Close(); err != nil {
		logr.Error("notification dispatcher shutdown", zap.Error(err))
	}
	cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		logr.Error("tracer shutdown", zap.Error(err))
	}
}
