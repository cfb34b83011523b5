package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/joho/godotenv/autoload"
	"gorm.io/gorm/logger"

	"github.com/qs3c/exam_prep_server/config"
	"github.com/qs3c/exam_prep_server/internal/api"
	"github.com/qs3c/exam_prep_server/internal/api/handler"
	"github.com/qs3c/exam_prep_server/internal/database"
	"github.com/qs3c/exam_prep_server/internal/pkg/auth"
	"github.com/qs3c/exam_prep_server/internal/pkg/billing"
	"github.com/qs3c/exam_prep_server/internal/pkg/cache"
	"github.com/qs3c/exam_prep_server/internal/pkg/cron"
	"github.com/qs3c/exam_prep_server/internal/pkg/generator"
	"github.com/qs3c/exam_prep_server/internal/pkg/metrics"
	"github.com/qs3c/exam_prep_server/internal/pkg/oss"
	"github.com/qs3c/exam_prep_server/internal/pkg/pubsub"
	"github.com/qs3c/exam_prep_server/internal/pkg/ratelimit"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
	"github.com/qs3c/exam_prep_server/internal/pkg/ws"
	"github.com/qs3c/exam_prep_server/internal/repository"
	"github.com/qs3c/exam_prep_server/internal/service"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// 加载配置
	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", sl.Err(err))
		os.Exit(1)
	}

	log := sl.NewLogger(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("server stopped with error", sl.Err(err))
		os.Exit(1)
	}
	log.Info("server stopped gracefully")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 初始化数据库
	dbLogLevel := logger.Warn
	if cfg.Server.Mode == "debug" {
		dbLogLevel = logger.Info
	}
	db, err := database.New(&cfg.Database, dbLogLevel)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	log.Info("database connected", "driver", cfg.Database.Driver)

	m := metrics.New()
	hub := ws.NewHub(log)

	// 缓存与通知：启用 Redis 时跨实例共享
	var (
		c        cache.Cache
		notifier pubsub.Notifier
		rdb      *redis.Client
	)
	if cfg.Redis.Enabled {
		rdb, err = database.NewRedis(&cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		log.Info("redis connected")

		c = cache.NewRedisCache(rdb, "exam:")
		notifier = pubsub.NewPublisher(rdb)
		go func() {
			if err := pubsub.NewSubscriber(rdb).Subscribe(ctx, hub.Deliver); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("notification subscriber stopped", sl.Err(err))
			}
		}()
	} else {
		c = cache.NewMemoryCache()
		notifier = pubsub.NewLocalNotifier(hub.Deliver)
	}

	verifier, err := newVerifier(&cfg.Auth)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}
	provider, err := newBillingProvider(&cfg.Billing)
	if err != nil {
		return fmt.Errorf("init billing: %w", err)
	}
	store, err := newStore(&cfg.Storage)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	gen := newGenerator(&cfg.Generator)
	log.Info("collaborators ready",
		"auth", cfg.Auth.Mode,
		"billing", cfg.Billing.Provider,
		"storage", cfg.Storage.Provider,
		"generator", cfg.Generator.Provider,
	)

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	testRepo := repository.NewTestRepository(db)
	perfRepo := repository.NewPerformanceRepository(db)
	uploadRepo := repository.NewUploadRepository(db)

	// 初始化 Service
	entitlementService := service.NewEntitlementService(userRepo, testRepo, uploadRepo, cfg)
	subscriptionService := service.NewSubscriptionService(userRepo, provider, c, notifier, m, log)
	testService := service.NewTestService(testRepo, uploadRepo, entitlementService, gen, c, notifier, m, cfg, log)
	performanceService := service.NewPerformanceService(perfRepo, testRepo, c, cfg, log)
	uploadService := service.NewUploadService(uploadRepo, entitlementService, store, m, cfg, log)
	userService := service.NewUserService(userRepo, entitlementService)

	// 定时清理过期上传
	if cfg.Cron.Enabled {
		cronService := cron.NewService(uploadService, cfg.Cron.Interval, log)
		cronService.Start()
		defer cronService.Stop()
	}

	limiter := ratelimit.New(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	go limiter.Run(ctx, time.Minute)

	handlers := api.Handlers{
		Entitlement: handler.NewEntitlementHandler(entitlementService, log),
		Test:        handler.NewTestHandler(testService, log),
		Stats:       handler.NewStatsHandler(performanceService, log),
		Upload:      handler.NewUploadHandler(uploadService, cfg, log),
		Billing:     handler.NewBillingHandler(subscriptionService, log),
		User:        handler.NewUserHandler(userService, log),
		WebSocket:   handler.NewWebSocketHandler(hub, verifier, cfg.CORS.AllowedOrigins, log),
	}
	router := api.NewRouter(handlers, verifier, subscriptionService, entitlementService, limiter, m, cfg, log)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newVerifier(cfg *config.AuthConfig) (auth.Verifier, error) {
	switch cfg.Mode {
	case "jwks":
		return auth.NewJWKSVerifierFromURL(cfg.JWKSURL, cfg.Issuer, cfg.Audience)
	case "disabled":
		// 本地开发：所有请求都视为同一个用户
		return auth.NewStaticVerifier(cfg.DevUserID, cfg.DevEmail), nil
	case "hs256", "":
		if cfg.Secret == "" {
			return nil, errors.New("auth.secret is required for hs256 mode")
		}
		return auth.NewHS256Verifier(cfg.Secret), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

func newBillingProvider(cfg *config.BillingConfig) (billing.Provider, error) {
	switch cfg.Provider {
	case "stripe":
		return billing.NewStripeProvider(billing.StripeConfig{
			SecretKey:     cfg.SecretKey,
			WebhookSecret: cfg.WebhookSecret,
			PriceID:       cfg.PriceID,
			FrontendURL:   cfg.FrontendURL,
		})
	case "mock", "":
		return billing.NewMockProvider(cfg.WebhookSecret, cfg.FrontendURL), nil
	default:
		return nil, fmt.Errorf("unsupported billing provider %q", cfg.Provider)
	}
}

func newStore(cfg *config.StorageConfig) (oss.Store, error) {
	switch cfg.Provider {
	case "oss":
		return oss.NewClient(&cfg.OSS)
	case "memory", "":
		return oss.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", cfg.Provider)
	}
}

func newGenerator(cfg *config.GeneratorConfig) generator.Generator {
	if cfg.Provider == "openai" {
		return generator.NewOpenAIGenerator(generator.OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	}
	return generator.NewMockGenerator()
}
