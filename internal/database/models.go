package database

import (
	"errors"
	"time"

	"tradebot-architect/internal/conversation"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a row does not exist or belongs to another user
var ErrNotFound = errors.New("not found")

// ErrInsufficientBalance is returned when a debit would make a balance negative
var ErrInsufficientBalance = errors.New("insufficient balance")

// Bot statuses
const (
	BotStatusActive  = "active"
	BotStatusPaused  = "paused"
	BotStatusStopped = "stopped"
)

// ValidBotStatus reports whether s is a status a bot may be set to
func ValidBotStatus(s string) bool {
	switch s {
	case BotStatusActive, BotStatusPaused, BotStatusStopped:
		return true
	}
	return false
}

// ChatMessage is one stored chat turn
type ChatMessage struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Stage     *string   `json:"stage,omitempty"`
	Model     *string   `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSession summarises one session of a user
type ChatSession struct {
	SessionID     string    `json:"session_id"`
	MessageCount  int       `json:"message_count"`
	FirstMessage  string    `json:"first_message"`
	LastMessageAt time.Time `json:"last_message_at"`
	BotID         *string   `json:"bot_id,omitempty"`
}

// Bot is a stored bot specification
type Bot struct {
	ID           string                         `json:"id"`
	UserID       string                         `json:"user_id"`
	SessionID    *string                        `json:"session_id,omitempty"`
	Name         string                         `json:"name"`
	BaseCoin     string                         `json:"base_coin"`
	StrategyType string                         `json:"strategy_type"`
	TradeType    string                         `json:"trade_type"`
	Status       string                         `json:"status"`
	IsPublic     bool                           `json:"is_public"`
	ClonedFrom   *string                        `json:"cloned_from,omitempty"`
	Config       *conversation.BotSpecification `json:"bot_config"`
	CreatedAt    time.Time                      `json:"created_at"`
	UpdatedAt    time.Time                      `json:"updated_at"`
}

// Paper trade outcomes
const (
	OutcomeWin  = "win"
	OutcomeLoss = "loss"
)

// PaperTrade is one simulated trade of a bot
type PaperTrade struct {
	ID         string          `json:"id"`
	BotID      string          `json:"bot_id"`
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Leverage   int             `json:"leverage"`
	PnL        decimal.Decimal `json:"pnl"`
	PnLPercent decimal.Decimal `json:"pnl_percent"`
	Outcome    string          `json:"outcome"`
	OpenedAt   time.Time       `json:"opened_at"`
	ClosedAt   time.Time       `json:"closed_at"`
}

// Payment kinds
const (
	PaymentKindSubscription = "subscription"
	PaymentKindTopUp        = "topup"
)

// Payment statuses as reported by the gateway
const (
	PaymentStatusWaiting       = "waiting"
	PaymentStatusConfirming    = "confirming"
	PaymentStatusConfirmed     = "confirmed"
	PaymentStatusSending       = "sending"
	PaymentStatusPartiallyPaid = "partially_paid"
	PaymentStatusFinished      = "finished"
	PaymentStatusFailed        = "failed"
	PaymentStatusRefunded      = "refunded"
	PaymentStatusExpired       = "expired"
)

// Payment is an invoice created with the payment gateway
type Payment struct {
	ID                string           `json:"id"`
	UserID            string           `json:"user_id"`
	OrderID           string           `json:"order_id"`
	Kind              string           `json:"kind"`
	Plan              *string          `json:"plan,omitempty"`
	AmountUSD         decimal.Decimal  `json:"amount_usd"`
	PayCurrency       *string          `json:"pay_currency,omitempty"`
	InvoiceID         *string          `json:"invoice_id,omitempty"`
	InvoiceURL        *string          `json:"invoice_url,omitempty"`
	ProviderPaymentID *string          `json:"provider_payment_id,omitempty"`
	ActuallyPaid      *decimal.Decimal `json:"actually_paid,omitempty"`
	Status            string           `json:"status"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Withdrawal statuses
const (
	WithdrawalStatusPending    = "pending"
	WithdrawalStatusProcessing = "processing"
	WithdrawalStatusFailed     = "failed"
)

// Withdrawal is a payout request funded from the user balance
type Withdrawal struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	AmountUSD     decimal.Decimal `json:"amount_usd"`
	Currency      string          `json:"currency"`
	Address       string          `json:"address"`
	Status        string          `json:"status"`
	PayoutID      *string         `json:"payout_id,omitempty"`
	FailureReason *string         `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Subscription is the plan currently attached to a user
type Subscription struct {
	UserID    string     `json:"user_id"`
	Plan      string     `json:"plan"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ExchangeKey is a stored exchange credential. The secret is either sealed in
// SecretCiphertext or kept in Vault.
type ExchangeKey struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	Exchange         string     `json:"exchange"`
	Label            *string    `json:"label,omitempty"`
	APIKey           string     `json:"-"`
	SecretCiphertext []byte     `json:"-"`
	SecretLast4      string     `json:"secret_last4"`
	VaultStored      bool       `json:"vault_stored"`
	LastTestedAt     *time.Time `json:"last_tested_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
