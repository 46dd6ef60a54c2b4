package database

import (
	"context"
	"fmt"
	"time"

	"tradebot-architect/config"
	"tradebot-architect/internal/logging"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConfigFrom maps the application database section onto a pool Config
func ConfigFrom(cfg config.DatabaseConfig) Config {
	return Config{
		Host:     cfg.Host,
		Port:     cfg.Port,
		User:     cfg.User,
		Password: cfg.Password,
		Database: cfg.Database,
		SSLMode:  cfg.SSLMode,
	}
}

// DSN renders the pgx connection string
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func log() *logging.Logger {
	return logging.WithComponent("database")
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log().Info("Connected to PostgreSQL", "database", cfg.Database, "host", cfg.Host)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log().Info("Database connection closed")
	}
}

// migrations are applied in order on every start. Each statement must stay
// idempotent.
var migrations = []string{
	// Chat transcripts, one row per turn
	`CREATE TABLE IF NOT EXISTS chat_messages (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id UUID NOT NULL,
		role VARCHAR(16) NOT NULL,
		content TEXT NOT NULL,
		stage VARCHAR(32),
		model VARCHAR(64),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(user_id, session_id, id)`,

	// Bots: the full specification lives in config, the rest is denormalised for listing
	`CREATE TABLE IF NOT EXISTS bots (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		session_id UUID,
		name VARCHAR(100) NOT NULL,
		base_coin VARCHAR(20) NOT NULL,
		strategy_type VARCHAR(32) NOT NULL,
		trade_type VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		cloned_from UUID,
		config JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bots_user ON bots(user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_bots_public ON bots(is_public) WHERE is_public`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_bots_session ON bots(user_id, session_id) WHERE session_id IS NOT NULL`,

	`CREATE TABLE IF NOT EXISTS paper_trades (
		id UUID PRIMARY KEY,
		bot_id UUID NOT NULL REFERENCES bots(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		symbol VARCHAR(20) NOT NULL,
		side VARCHAR(8) NOT NULL,
		entry_price DECIMAL(20, 8) NOT NULL,
		exit_price DECIMAL(20, 8) NOT NULL,
		quantity DECIMAL(20, 8) NOT NULL,
		leverage INT NOT NULL DEFAULT 1,
		pnl DECIMAL(20, 2) NOT NULL,
		pnl_percent DECIMAL(10, 4) NOT NULL,
		outcome VARCHAR(8) NOT NULL,
		opened_at TIMESTAMPTZ NOT NULL,
		closed_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_paper_trades_bot ON paper_trades(bot_id, opened_at)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		order_id VARCHAR(64) NOT NULL UNIQUE,
		kind VARCHAR(16) NOT NULL,
		plan VARCHAR(16),
		amount_usd DECIMAL(20, 2) NOT NULL,
		pay_currency VARCHAR(16),
		invoice_id VARCHAR(64),
		invoice_url TEXT,
		provider_payment_id VARCHAR(64),
		actually_paid DECIMAL(30, 10),
		status VARCHAR(32) NOT NULL DEFAULT 'waiting',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_user ON payments(user_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS user_balances (
		user_id TEXT PRIMARY KEY,
		balance DECIMAL(20, 2) NOT NULL DEFAULT 0 CHECK (balance >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS withdrawals (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		amount_usd DECIMAL(20, 2) NOT NULL,
		currency VARCHAR(16) NOT NULL,
		address TEXT NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'pending',
		payout_id VARCHAR(64),
		failure_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_withdrawals_user ON withdrawals(user_id, created_at DESC)`,

	`CREATE TABLE IF NOT EXISTS subscriptions (
		user_id TEXT PRIMARY KEY,
		plan VARCHAR(16) NOT NULL,
		status VARCHAR(16) NOT NULL,
		expires_at TIMESTAMPTZ,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS exchange_keys (
		id UUID PRIMARY KEY,
		user_id TEXT NOT NULL,
		exchange VARCHAR(32) NOT NULL,
		label VARCHAR(100),
		api_key TEXT NOT NULL,
		secret_ciphertext BYTEA,
		secret_last4 VARCHAR(4) NOT NULL,
		vault_stored BOOLEAN NOT NULL DEFAULT FALSE,
		last_tested_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_exchange_keys_user ON exchange_keys(user_id)`,
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log().Info("Running database migrations", "count", len(migrations))

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log().Info("Database migrations completed")
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
