package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/chatforge/server/internal/adapter/outbound/llm"
	redisadapter "github.com/chatforge/server/internal/adapter/outbound/redis"
	"github.com/chatforge/server/internal/module/account"
	"github.com/chatforge/server/internal/module/chat"
	"github.com/chatforge/server/internal/module/identity"
	"github.com/chatforge/server/internal/module/ledger"
	"github.com/chatforge/server/internal/module/pricing"
	"github.com/chatforge/server/internal/module/purchase"
	"github.com/chatforge/server/internal/module/usage"
	sharedcache "github.com/chatforge/server/internal/shared/cache"
	"github.com/chatforge/server/internal/shared/config"
	"github.com/chatforge/server/internal/shared/database"
	"github.com/chatforge/server/internal/shared/logger"
	"github.com/chatforge/server/internal/utils/metrics"
	"github.com/chatforge/server/internal/utils/middleware"
)

// App wires configuration, storage, and the module handlers into one HTTP
// server.
type App struct {
	config  *config.Config
	db      *gorm.DB
	redis   *goredis.Client
	router  *gin.Engine
	logger  *zap.Logger
	metrics *metrics.Metrics

	verifier    identity.Verifier
	accountRepo account.Repository
	rateLimiter *redisadapter.RateLimiter

	accountHandler  *account.Handler
	purchaseHandler *purchase.Handler
	usageHandler    *usage.Handler
	chatHandler     *chat.Handler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	app := &App{
		config:  cfg,
		logger:  log,
		metrics: metrics.New(""),
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if err := db.AutoMigrate(
		&account.Account{},
		&chat.Conversation{},
		&chat.Message{},
		&usage.Event{},
		&purchase.Record{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	// Redis is optional: without it the daily Opus counter, per-user rate
	// limiting, and idempotent settlement replay are disabled.
	if cfg.Redis.Address != "" {
		redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("redis connection failed, continuing without it", zap.Error(err))
		} else {
			app.redis = redisClient
			app.rateLimiter = redisadapter.NewRateLimiter(redisClient)
		}
	}

	if err := app.initModules(); err != nil {
		return nil, fmt.Errorf("init modules: %w", err)
	}

	app.router = app.setupRouter()
	app.registerRoutes()

	return app, nil
}

// initModules builds the dependency graph bottom-up: ledger, accounts,
// pricing, purchases, usage metering, then chat.
func (a *App) initModules() error {
	cfg := a.config

	a.verifier = identity.NewJWTVerifier(&identity.JWTConfig{
		Secret: cfg.Auth.JWTSecret,
		Issuer: cfg.Auth.Issuer,
	})

	a.accountRepo = account.NewRepository(a.db)

	ledgerSvc := ledger.NewService(a.accountRepo, ledger.Config{
		WelcomeTokens: cfg.Pricing.WelcomeTokens,
		ExpiryDays:    cfg.Pricing.TokenExpiryDays,
	}, a.metrics, a.logger)

	accountSvc := account.NewService(a.accountRepo, ledgerSvc, a.logger)
	a.accountHandler = account.NewHandler(accountSvc)

	table := pricing.NewDefaultTable()
	converter := pricing.NewConverter(cfg.Pricing.USDToBDT)

	var opusLimiter *redisadapter.OpusLimiter
	if a.redis != nil {
		opusLimiter = redisadapter.NewOpusLimiter(a.redis)
	}

	var gateway purchase.Gateway
	switch cfg.Payment.Gateway {
	case "stripe":
		if cfg.Payment.StripeAPIKey == "" {
			return fmt.Errorf("stripe gateway selected but no API key configured")
		}
		gateway = purchase.NewStripeGateway(&purchase.StripeConfig{APIKey: cfg.Payment.StripeAPIKey})
	default:
		gateway = purchase.NewSimulatedGateway()
	}

	var opusCounter purchase.OpusCounter
	if opusLimiter != nil {
		opusCounter = opusLimiter
	}
	purchaseSvc := purchase.NewService(
		table,
		converter,
		ledgerSvc,
		a.accountRepo,
		purchase.NewRepository(a.db),
		gateway,
		opusCounter,
		cfg.Pricing.TokenExpiryDays,
		a.logger,
	)
	a.purchaseHandler = purchase.NewHandler(purchaseSvc, a.metrics)

	meter := usage.NewMeter(ledgerSvc, usage.NewRepository(a.db), a.logger)
	a.usageHandler = usage.NewHandler(meter)

	a.chatHandler = chat.NewHandler(a.initChatService(meter, opusLimiter), a.metrics)

	return nil
}

// initChatService builds the provider registry and the chat service on
// top of it. Each vendor sits behind its own circuit breaker.
func (a *App) initChatService(meter *usage.Meter, opusLimiter *redisadapter.OpusLimiter) *chat.Service {
	cfg := a.config

	httpClient := &http.Client{Timeout: cfg.AI.RequestTimeout}
	breakerCfg := &llm.BreakerConfig{
		FailureThreshold: cfg.AI.FailureThreshold,
		Timeout:          cfg.AI.CircuitTimeout,
	}

	registry := llm.NewRegistry()
	openai := llm.NewOpenAIProvider(httpClient, &llm.OpenAIConfig{
		APIKey:  cfg.AI.OpenAIAPIKey,
		BaseURL: cfg.AI.OpenAIBaseURL,
	})
	registry.Register(llm.NewInstrumentedProvider(llm.NewBreakerProvider(openai, breakerCfg), a.metrics), "gpt")

	anthropic := llm.NewAnthropicProvider(httpClient, &llm.AnthropicConfig{
		APIKey:  cfg.AI.AnthropicAPIKey,
		BaseURL: cfg.AI.AnthropicBaseURL,
	})
	registry.Register(llm.NewInstrumentedProvider(llm.NewBreakerProvider(anthropic, breakerCfg), a.metrics), "claude")

	var opusGate chat.OpusGate
	if opusLimiter != nil {
		opusGate = opusLimiter
	}

	return chat.NewService(
		chat.NewRepository(a.db),
		a.accountRepo,
		registry,
		meter,
		opusGate,
		chat.Config{
			MinResponseAllowance: cfg.Chat.MinResponseAllowance,
			MaxTokens:            cfg.Chat.MaxTokens,
			HistoryLimit:         cfg.Chat.HistoryLimit,
			FallbackMessage:      cfg.Chat.FallbackMessage,
			DefaultModel:         cfg.Chat.DefaultModel,
		},
		a.logger,
	)
}

// setupRouter creates the Gin router with the global middleware chain.
func (a *App) setupRouter() *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.CORS(nil))
	r.Use(middleware.Metrics(a.metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// registerRoutes mounts the module handlers under /api/v1.
func (a *App) registerRoutes() {
	v1 := a.router.Group("/api/v1")

	protected := v1.Group("")
	protected.Use(middleware.RequireAuth(a.verifier))
	if a.rateLimiter != nil {
		protected.Use(middleware.RateLimitByUser(a.rateLimiter, 120, time.Minute))
	}

	a.accountHandler.RegisterRoutes(protected)
	a.usageHandler.RegisterRoutes(protected)
	a.chatHandler.RegisterRoutes(protected)

	// Settlement endpoints replay cached responses when a client retries
	// with the same Idempotency-Key.
	billing := protected.Group("")
	if a.redis != nil {
		billing.Use(middleware.Idempotency(a.redis, 24*time.Hour))
	}
	a.purchaseHandler.RegisterRoutes(billing)

	admin := v1.Group("/admin")
	admin.Use(middleware.RequireAuth(a.verifier))
	admin.Use(middleware.RequireAdmin(a.isAdmin))
	a.accountHandler.RegisterAdminRoutes(admin)
}

// isAdmin reports whether the user's account carries the admin flag.
func (a *App) isAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	acct, err := a.accountRepo.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return acct.IsAdmin, nil
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Stop releases the application's resources.
func (a *App) Stop() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = database.Close(a.db)
	}
}
