package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"tradebot-architect/config"
	"tradebot-architect/internal/auth"
	"tradebot-architect/internal/cache"
	"tradebot-architect/internal/chat"
	"tradebot-architect/internal/conversation"
	"tradebot-architect/internal/database"
	"tradebot-architect/internal/events"
	"tradebot-architect/internal/exchangekeys"
	"tradebot-architect/internal/logging"
	"tradebot-architect/internal/papertrade"
	"tradebot-architect/internal/payments"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func log() *logging.Logger {
	return logging.WithComponent("api")
}

// ChatService runs conversation turns and manages transcripts
type ChatService interface {
	ProcessTurn(ctx context.Context, req chat.TurnRequest) (*chat.TurnReply, error)
	Transcript(ctx context.Context, userID, sessionID string) ([]conversation.Turn, error)
	DeleteSession(ctx context.Context, userID, sessionID string) error
	Sessions(ctx context.Context, userID string) ([]*database.ChatSession, error)
}

// BotRepository stores bots and the marketplace
type BotRepository interface {
	CreateBot(ctx context.Context, userID, sessionID string, spec *conversation.BotSpecification) (*database.Bot, error)
	GetBot(ctx context.Context, userID, botID string) (*database.Bot, error)
	ListBots(ctx context.Context, userID string) ([]*database.Bot, error)
	UpdateBotStatus(ctx context.Context, userID, botID, status string) (*database.Bot, error)
	SetBotPublic(ctx context.Context, userID, botID string, public bool) (*database.Bot, error)
	DeleteBot(ctx context.Context, userID, botID string) error
	ListPublicBots(ctx context.Context, strategy string, limit, offset int) ([]*database.Bot, error)
	CloneBot(ctx context.Context, userID, botID string) (*database.Bot, error)
}

// PaperTrading simulates and stores paper trades
type PaperTrading interface {
	Run(ctx context.Context, userID, botID string, count int) (*papertrade.Report, error)
	Get(ctx context.Context, userID, botID string) (*papertrade.Report, error)
	Clear(ctx context.Context, userID, botID string) (int64, error)
	Previews(ctx context.Context, bots []*database.Bot, count int) (map[string]papertrade.Summary, error)
}

// PaymentService handles invoices, webhooks and withdrawals
type PaymentService interface {
	CreateInvoice(ctx context.Context, userID string, req payments.CreateInvoiceRequest) (*database.Payment, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*database.Payment, error)
	RequestWithdrawal(ctx context.Context, userID string, req payments.WithdrawalRequest) (*database.Withdrawal, error)
	Balance(ctx context.Context, userID string) (decimal.Decimal, error)
	Subscription(ctx context.Context, userID string) (*database.Subscription, error)
	Payments(ctx context.Context, userID string) ([]*database.Payment, error)
	Withdrawals(ctx context.Context, userID string) ([]*database.Withdrawal, error)
	AllPayments(ctx context.Context, status string, limit, offset int) ([]*database.Payment, error)
}

// ExchangeKeyService manages exchange credentials
type ExchangeKeyService interface {
	Create(ctx context.Context, userID string, req exchangekeys.CreateRequest) (*exchangekeys.KeyView, error)
	List(ctx context.Context, userID string) ([]*exchangekeys.KeyView, error)
	Delete(ctx context.Context, userID, id string) error
	Test(ctx context.Context, userID, id string) (*exchangekeys.AccountCheck, error)
}

// HealthProbe checks one dependency. A failing critical probe turns /health
// into a 503.
type HealthProbe struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// Deps are the services the server routes to
type Deps struct {
	Chat         ChatService
	Bots         BotRepository
	PaperTrades  PaperTrading
	Payments     PaymentService
	ExchangeKeys ExchangeKeyService
	EventBus     *events.EventBus
	JWT          *auth.JWTManager    // nil when auth is disabled
	Cache        *cache.CacheService // optional, shares rate limit counters across instances
	Probes       []HealthProbe
}

// RateLimiter provides simple in-memory rate limiting per client
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      config.ServerConfig
	deps        Deps
	authEnabled bool
	defaultUser string
	rateLimiter *RateLimiter
	hub         *UserWSHub
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, authCfg config.AuthConfig, deps Deps) *Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logging.GinMiddleware())

	corsConfig := cors.DefaultConfig()
	origins := splitOrigins(cfg.AllowedOrigins)
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", logging.TraceHeader}
	corsConfig.ExposeHeaders = []string{"Content-Length", logging.TraceHeader}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	limit := cfg.RateLimit
	if limit <= 0 {
		limit = 120
	}

	s := &Server{
		router:      router,
		config:      cfg,
		deps:        deps,
		authEnabled: deps.JWT != nil,
		defaultUser: authCfg.DefaultUserID,
		rateLimiter: NewRateLimiter(limit, time.Minute),
		hub:         NewUserWSHub(),
	}

	go s.hub.Run()
	if deps.EventBus != nil {
		deps.EventBus.SubscribeAll(func(e events.Event) {
			if e.UserID != "" {
				s.hub.BroadcastToUser(e.UserID, e)
			}
		})
	}

	s.setupRoutes()
	return s
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	return origins
}

// authMiddleware picks JWT verification or the fixed default user
func (s *Server) authMiddleware() gin.HandlerFunc {
	if s.authEnabled {
		return auth.Middleware(s.deps.JWT)
	}
	return auth.DisabledMiddleware(s.defaultUser)
}

// rateLimitMiddleware limits requests per caller. Counters live in Redis when
// it is reachable and fall back to process memory otherwise.
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	window := time.Minute
	return func(c *gin.Context) {
		client := auth.GetUserID(c)
		if client == "" {
			client = c.ClientIP()
		}

		allowed := true
		if s.deps.Cache != nil && s.deps.Cache.IsHealthy() {
			start := time.Now().Truncate(window).Unix()
			n, err := s.deps.Cache.IncrementWindow(c.Request.Context(), cache.RateLimitKey(client, start), window)
			if err == nil {
				allowed = n <= int64(s.rateLimiter.limit)
			} else {
				allowed = s.rateLimiter.Allow(client)
			}
		} else {
			allowed = s.rateLimiter.Allow(client)
		}

		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   true,
				"message": "Too many requests. Please slow down.",
			})
			return
		}
		c.Next()
	}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	// Public endpoints
	s.router.POST("/api/payments/webhook", s.handlePaymentWebhook)
	s.router.GET("/api/subscriptions/plans", s.handleGetPlans)
	s.router.GET("/api/marketplace/bots", s.handleListMarketplace)

	// Browsers cannot set headers on websocket upgrades
	s.router.GET("/ws", auth.TokenFromQuery(), s.authMiddleware(), s.handleUserWebSocket)

	api := s.router.Group("/api")
	api.Use(s.authMiddleware())
	api.Use(s.rateLimitMiddleware())
	{
		// Chat
		api.POST("/chat", s.handleChat)
		api.GET("/chat/sessions", s.handleListSessions)
		api.GET("/chat/sessions/:id", s.handleGetSession)
		api.DELETE("/chat/sessions/:id", s.handleDeleteSession)

		// Bots
		api.GET("/bots", s.handleListBots)
		api.POST("/bots", s.handleCreateBot)
		api.GET("/bots/:id", s.handleGetBot)
		api.PATCH("/bots/:id/status", s.handleUpdateBotStatus)
		api.POST("/bots/:id/publish", s.handlePublishBot)
		api.DELETE("/bots/:id", s.handleDeleteBot)

		// Paper trading
		api.POST("/bots/:id/paper-trades", s.handleRunPaperTrades)
		api.GET("/bots/:id/paper-trades", s.handleGetPaperTrades)
		api.DELETE("/bots/:id/paper-trades", s.handleClearPaperTrades)

		// Marketplace
		api.POST("/marketplace/bots/:id/clone", s.handleCloneBot)

		// Payments
		api.POST("/payments/invoices", s.handleCreateInvoice)
		api.GET("/payments", s.handleListPayments)
		api.GET("/subscriptions/current", s.handleGetSubscription)
		api.GET("/balance", s.handleGetBalance)
		api.POST("/withdrawals", s.handleCreateWithdrawal)
		api.GET("/withdrawals", s.handleListWithdrawals)

		// Exchange keys
		api.GET("/exchange-keys", s.handleListExchangeKeys)
		api.POST("/exchange-keys", s.handleCreateExchangeKey)
		api.DELETE("/exchange-keys/:id", s.handleDeleteExchangeKey)
		api.POST("/exchange-keys/:id/test", s.handleTestExchangeKey)

		// Admin
		admin := api.Group("/admin")
		admin.Use(auth.RequireAdmin())
		admin.GET("/payments", s.handleAdminListPayments)
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  secondsOr(s.config.ReadTimeout, 15),
		WriteTimeout: secondsOr(s.config.WriteTimeout, 30),
		IdleTimeout:  60 * time.Second,
	}

	log().Info("Starting HTTP server", "addr", addr, "auth_enabled", s.authEnabled)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log().Info("Shutting down HTTP server")
	s.hub.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func secondsOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
