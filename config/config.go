package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerConfig     ServerConfig     `json:"server"`
	DatabaseConfig   DatabaseConfig   `json:"database"`
	RedisConfig      RedisConfig      `json:"redis"`
	AuthConfig       AuthConfig       `json:"auth"`
	VaultConfig      VaultConfig      `json:"vault"`
	AIConfig         AIConfig         `json:"ai"`
	ChatConfig       ChatConfig       `json:"chat"`
	PaymentsConfig   PaymentsConfig   `json:"payments"`
	EncryptionConfig EncryptionConfig `json:"encryption"`
	BinanceConfig    BinanceConfig    `json:"binance"`
	LoggingConfig    LoggingConfig    `json:"logging"`
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // CORS allowed origins
	ReadTimeout     int    `json:"read_timeout"`    // Seconds
	WriteTimeout    int    `json:"write_timeout"`   // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"`
	RateLimit       int    `json:"rate_limit"` // Requests per minute per client
	PublicBaseURL   string `json:"public_base_url"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// AuthConfig holds authentication configuration. Tokens are HS256 JWTs
// signed with the Supabase project secret.
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	Issuer              string        `json:"issuer"`
	Audience            string        `json:"audience"`
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	DefaultUserID       string        `json:"default_user_id"` // used when auth is disabled
}

// VaultConfig holds HashiCorp Vault configuration
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for exchange credentials
}

// AIConfig holds the opportunistic LLM provider keys
type AIConfig struct {
	Enabled      bool          `json:"enabled"`
	OpenAIAPIKey string        `json:"openai_api_key"`
	ClaudeAPIKey string        `json:"claude_api_key"`
	GeminiAPIKey string        `json:"gemini_api_key"`
	MaxTokens    int           `json:"max_tokens"`
	Temperature  float64       `json:"temperature"`
	Timeout      time.Duration `json:"timeout"`
	// Consecutive provider failures before the breaker opens
	BreakerThreshold int           `json:"breaker_threshold"`
	BreakerCooldown  time.Duration `json:"breaker_cooldown"`
}

// ChatConfig holds conversation orchestration settings
type ChatConfig struct {
	OpportunisticMaxHistory int           `json:"opportunistic_max_history"`
	LLMTimeout              time.Duration `json:"llm_timeout"`
	MinLLMResponseChars     int           `json:"min_llm_response_chars"`
	TranscriptCacheTTL      time.Duration `json:"transcript_cache_ttl"`
	MaxMessageLength        int           `json:"max_message_length"`
}

// PaymentsConfig holds NowPayments settings
type PaymentsConfig struct {
	Enabled       bool    `json:"enabled"`
	APIKey        string  `json:"api_key"`
	IPNSecret     string  `json:"ipn_secret"`
	BaseURL       string  `json:"base_url"`
	PayoutToken   string  `json:"payout_token"` // bearer token for the payout API
	PayCurrency   string  `json:"pay_currency"`
	MinWithdrawal float64 `json:"min_withdrawal"`
}

// EncryptionConfig holds the master key used to seal exchange credentials
type EncryptionConfig struct {
	MasterKey string `json:"master_key"`
}

// BinanceConfig is only used for checking stored exchange credentials
type BinanceConfig struct {
	BaseURL string `json:"base_url"`
	TestNet bool   `json:"testnet"`
}

// Load reads config.json (optional), a .env file (optional) and then applies
// environment overrides, which take precedence.
func Load() (*Config, error) {
	cfg, err := loadFromFile(getEnvOrDefault("CONFIG_FILE", "config.json"))
	if err != nil {
		cfg = &Config{}
	}

	if err := godotenv.Load(getEnvOrDefault("ENV_FILE", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("error loading env file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Values already present in the file are used as defaults.
func applyEnvOverrides(cfg *Config) {
	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", orString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", orString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvBoolOrDefault("LOG_JSON", true)
	cfg.LoggingConfig.IncludeFile = getEnvBoolOrDefault("LOG_INCLUDE_FILE", cfg.LoggingConfig.IncludeFile)

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", orInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", orString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", orString(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", orInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", orInt(cfg.ServerConfig.WriteTimeout, 60))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", orInt(cfg.ServerConfig.ShutdownTimeout, 10))
	cfg.ServerConfig.RateLimit = getEnvIntOrDefault("SERVER_RATE_LIMIT", orInt(cfg.ServerConfig.RateLimit, 120))
	cfg.ServerConfig.PublicBaseURL = getEnvOrDefault("PUBLIC_BASE_URL", orString(cfg.ServerConfig.PublicBaseURL, "http://localhost:8080"))

	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", orString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", orInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", orString(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", orString(cfg.DatabaseConfig.Database, "postgres"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", orString(cfg.DatabaseConfig.SSLMode, "require"))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvBoolOrDefault("REDIS_ENABLED", cfg.RedisConfig.Enabled)
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDR", orString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", orInt(cfg.RedisConfig.PoolSize, 20))

	// Auth config
	cfg.AuthConfig.Enabled = getEnvBoolOrDefault("AUTH_ENABLED", cfg.AuthConfig.Enabled)
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("SUPABASE_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.Issuer = getEnvOrDefault("AUTH_ISSUER", cfg.AuthConfig.Issuer)
	cfg.AuthConfig.Audience = getEnvOrDefault("AUTH_AUDIENCE", orString(cfg.AuthConfig.Audience, "authenticated"))
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", orDuration(cfg.AuthConfig.AccessTokenDuration, time.Hour))
	cfg.AuthConfig.DefaultUserID = getEnvOrDefault("AUTH_DEFAULT_USER_ID", orString(cfg.AuthConfig.DefaultUserID, "00000000-0000-0000-0000-000000000000"))

	// Vault config
	cfg.VaultConfig.Enabled = getEnvBoolOrDefault("VAULT_ENABLED", cfg.VaultConfig.Enabled)
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", orString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orString(cfg.VaultConfig.SecretPath, "tradebot/exchange-keys"))

	// AI config
	cfg.AIConfig.Enabled = getEnvBoolOrDefault("AI_ENABLED", true)
	cfg.AIConfig.OpenAIAPIKey = getEnvOrDefault("OPENAI_API_KEY", cfg.AIConfig.OpenAIAPIKey)
	cfg.AIConfig.ClaudeAPIKey = getEnvOrDefault("ANTHROPIC_API_KEY", cfg.AIConfig.ClaudeAPIKey)
	cfg.AIConfig.GeminiAPIKey = getEnvOrDefault("GEMINI_API_KEY", cfg.AIConfig.GeminiAPIKey)
	cfg.AIConfig.MaxTokens = getEnvIntOrDefault("AI_MAX_TOKENS", orInt(cfg.AIConfig.MaxTokens, 1024))
	cfg.AIConfig.Temperature = getEnvFloatOrDefault("AI_TEMPERATURE", orFloat(cfg.AIConfig.Temperature, 0.7))
	cfg.AIConfig.Timeout = getEnvDurationOrDefault("AI_TIMEOUT", orDuration(cfg.AIConfig.Timeout, 30*time.Second))
	cfg.AIConfig.BreakerThreshold = getEnvIntOrDefault("AI_BREAKER_THRESHOLD", orInt(cfg.AIConfig.BreakerThreshold, 3))
	cfg.AIConfig.BreakerCooldown = getEnvDurationOrDefault("AI_BREAKER_COOLDOWN", orDuration(cfg.AIConfig.BreakerCooldown, time.Minute))

	// Chat config
	cfg.ChatConfig.OpportunisticMaxHistory = getEnvIntOrDefault("CHAT_LLM_MAX_HISTORY", orInt(cfg.ChatConfig.OpportunisticMaxHistory, 2))
	cfg.ChatConfig.LLMTimeout = getEnvDurationOrDefault("CHAT_LLM_TIMEOUT", orDuration(cfg.ChatConfig.LLMTimeout, 15*time.Second))
	cfg.ChatConfig.MinLLMResponseChars = getEnvIntOrDefault("CHAT_MIN_LLM_RESPONSE", orInt(cfg.ChatConfig.MinLLMResponseChars, 100))
	cfg.ChatConfig.TranscriptCacheTTL = getEnvDurationOrDefault("CHAT_TRANSCRIPT_CACHE_TTL", orDuration(cfg.ChatConfig.TranscriptCacheTTL, 10*time.Minute))
	cfg.ChatConfig.MaxMessageLength = getEnvIntOrDefault("CHAT_MAX_MESSAGE_LENGTH", orInt(cfg.ChatConfig.MaxMessageLength, 4000))

	// Payments config
	cfg.PaymentsConfig.Enabled = getEnvBoolOrDefault("PAYMENTS_ENABLED", cfg.PaymentsConfig.Enabled)
	cfg.PaymentsConfig.APIKey = getEnvOrDefault("NOWPAYMENTS_API_KEY", cfg.PaymentsConfig.APIKey)
	cfg.PaymentsConfig.IPNSecret = getEnvOrDefault("NOWPAYMENTS_IPN_SECRET", cfg.PaymentsConfig.IPNSecret)
	cfg.PaymentsConfig.BaseURL = getEnvOrDefault("NOWPAYMENTS_BASE_URL", orString(cfg.PaymentsConfig.BaseURL, "https://api.nowpayments.io/v1"))
	cfg.PaymentsConfig.PayoutToken = getEnvOrDefault("NOWPAYMENTS_PAYOUT_TOKEN", cfg.PaymentsConfig.PayoutToken)
	cfg.PaymentsConfig.PayCurrency = getEnvOrDefault("NOWPAYMENTS_PAY_CURRENCY", orString(cfg.PaymentsConfig.PayCurrency, "usdttrc20"))
	cfg.PaymentsConfig.MinWithdrawal = getEnvFloatOrDefault("PAYMENTS_MIN_WITHDRAWAL", orFloat(cfg.PaymentsConfig.MinWithdrawal, 10))

	// Encryption config
	cfg.EncryptionConfig.MasterKey = getEnvOrDefault("ENCRYPTION_KEY", cfg.EncryptionConfig.MasterKey)

	// Binance config
	cfg.BinanceConfig.BaseURL = getEnvOrDefault("BINANCE_BASE_URL", cfg.BinanceConfig.BaseURL)
	cfg.BinanceConfig.TestNet = getEnvBoolOrDefault("BINANCE_TESTNET", cfg.BinanceConfig.TestNet)
}

// Validate rejects combinations the server cannot run with
func (c *Config) Validate() error {
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		return errors.New("auth enabled but SUPABASE_JWT_SECRET is empty")
	}
	if c.PaymentsConfig.Enabled && (c.PaymentsConfig.APIKey == "" || c.PaymentsConfig.IPNSecret == "") {
		return errors.New("payments enabled but NOWPAYMENTS_API_KEY or NOWPAYMENTS_IPN_SECRET is empty")
	}
	if c.ChatConfig.OpportunisticMaxHistory < 0 {
		return fmt.Errorf("invalid chat.opportunistic_max_history: %d", c.ChatConfig.OpportunisticMaxHistory)
	}
	return nil
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orFloat(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

func orDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}
