package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradebot-architect/config"
	"tradebot-architect/internal/ai/llm"
	"tradebot-architect/internal/api"
	"tradebot-architect/internal/auth"
	"tradebot-architect/internal/cache"
	"tradebot-architect/internal/chat"
	"tradebot-architect/internal/circuit"
	"tradebot-architect/internal/database"
	"tradebot-architect/internal/events"
	"tradebot-architect/internal/exchangekeys"
	"tradebot-architect/internal/logging"
	"tradebot-architect/internal/papertrade"
	"tradebot-architect/internal/payments"
	"tradebot-architect/internal/vault"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Failed to load configuration", "error", err)
	}
	if err := cfg.Validate(); err != nil {
		logging.Fatal("Invalid configuration", "error", err)
	}

	// Initialize structured logging
	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	// Database
	db, err := database.NewDB(database.ConfigFrom(cfg.DatabaseConfig))
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	migrateCtx, cancelMigrate := context.WithTimeout(context.Background(), time.Minute)
	err = db.RunMigrations(migrateCtx)
	cancelMigrate()
	if err != nil {
		logger.Fatal("Failed to run migrations", "error", err)
	}
	repo := database.NewRepository(db)

	// Redis is optional; everything falls back to Postgres or memory
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.Warn("Redis unavailable, continuing without cache", "error", err)
			cacheService = nil
		} else {
			defer cacheService.Close()
		}
	}

	eventBus := events.NewEventBus()
	logger.Info("Event bus initialized")

	// Chat
	chatService := chat.NewService(cfg.ChatConfig, repo, repo)
	chatService.SetPublisher(eventBus)
	if cacheService != nil {
		chatService.SetCache(cache.NewTranscriptCache(cacheService, cfg.ChatConfig.TranscriptCacheTTL))
	}
	if cfg.AIConfig.Enabled {
		breakers := circuit.NewGroup(&circuit.Config{
			Enabled:          true,
			FailureThreshold: cfg.AIConfig.BreakerThreshold,
			Cooldown:         cfg.AIConfig.BreakerCooldown,
		})
		base := llm.DefaultClientConfig()
		if cfg.AIConfig.MaxTokens > 0 {
			base.MaxTokens = cfg.AIConfig.MaxTokens
		}
		if cfg.AIConfig.Temperature > 0 {
			base.Temperature = cfg.AIConfig.Temperature
		}
		if cfg.AIConfig.Timeout > 0 {
			base.Timeout = cfg.AIConfig.Timeout
		}
		chatService.SetResponder(llm.NewRegistry(llm.ProviderKeys{
			OpenAI: cfg.AIConfig.OpenAIAPIKey,
			Claude: cfg.AIConfig.ClaudeAPIKey,
			Gemini: cfg.AIConfig.GeminiAPIKey,
		}, *base, breakers))
		logger.Info("Opportunistic LLM replies enabled")
	}

	// Paper trading
	paperService := papertrade.NewService(repo, papertrade.NewSimulator())
	paperService.SetPublisher(eventBus)

	// Exchange credentials
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		logger.Fatal("Failed to create vault client", "error", err)
	}
	sealer, err := exchangekeys.NewSealer(cfg.EncryptionConfig.MasterKey)
	if err != nil {
		logger.Fatal("Failed to initialize credential sealer", "error", err)
	}
	keyService := exchangekeys.NewService(repo, vaultClient, sealer, exchangekeys.NewBinanceVerifier(cfg.BinanceConfig))

	// Payments
	var gateway payments.Gateway
	if cfg.PaymentsConfig.Enabled {
		gateway = payments.NewNowPaymentsClient(cfg.PaymentsConfig)
		logger.Info("NowPayments gateway enabled")
	}
	paymentService := payments.NewService(cfg.PaymentsConfig, cfg.ServerConfig.PublicBaseURL, repo, gateway)
	paymentService.SetPublisher(eventBus)
	if cacheService != nil {
		paymentService.SetCache(cache.NewBalanceCache(cacheService, cache.DefaultBalanceTTL))
	}

	// Auth
	var jwtManager *auth.JWTManager
	if cfg.AuthConfig.Enabled {
		jwtManager = auth.NewJWTManager(cfg.AuthConfig)
	} else {
		logger.Warn("Authentication disabled, all requests run as the default user", "user_id", cfg.AuthConfig.DefaultUserID)
	}

	probes := []api.HealthProbe{
		{Name: "database", Critical: true, Check: repo.HealthCheck},
		{Name: "vault", Critical: cfg.VaultConfig.Enabled, Check: vaultClient.Health},
	}
	if cacheService != nil {
		probes = append(probes, api.HealthProbe{Name: "redis", Check: cacheService.Ping})
	}

	server := api.NewServer(cfg.ServerConfig, cfg.AuthConfig, api.Deps{
		Chat:         chatService,
		Bots:         repo,
		PaperTrades:  paperService,
		Payments:     paymentService,
		ExchangeKeys: keyService,
		EventBus:     eventBus,
		JWT:          jwtManager,
		Cache:        cacheService,
		Probes:       probes,
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("Server error", "error", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("Shutting down", "signal", sig.String())

	timeout := time.Duration(cfg.ServerConfig.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Shutdown complete")
}
