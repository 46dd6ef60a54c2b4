package exchangekeys

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"tradebot-architect/config"

	"github.com/adshao/go-binance/v2"
)

const binanceTestnetURL = "https://testnet.binance.vision"

// ErrRejected wraps any failure of the exchange to accept a credential pair
var ErrRejected = errors.New("exchange rejected credentials")

// AccountCheck is what a successful credential test reports
type AccountCheck struct {
	CanTrade    bool     `json:"can_trade"`
	CanWithdraw bool     `json:"can_withdraw"`
	AccountType string   `json:"account_type"`
	Permissions []string `json:"permissions"`
}

// Verifier checks that a credential pair is accepted by the exchange
type Verifier interface {
	Verify(ctx context.Context, apiKey, secretKey string) (*AccountCheck, error)
}

// BinanceVerifier calls the signed spot account endpoint
type BinanceVerifier struct {
	baseURL string
	timeout time.Duration
}

// NewBinanceVerifier creates a verifier for the configured Binance network
func NewBinanceVerifier(cfg config.BinanceConfig) *BinanceVerifier {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" && cfg.TestNet {
		base = binanceTestnetURL
	}
	return &BinanceVerifier{baseURL: base, timeout: 10 * time.Second}
}

// Verify runs GET /api/v3/account with the given credentials
func (v *BinanceVerifier) Verify(ctx context.Context, apiKey, secretKey string) (*AccountCheck, error) {
	client := binance.NewClient(apiKey, secretKey)
	if v.baseURL != "" {
		client.BaseURL = v.baseURL
	}
	client.HTTPClient = &http.Client{Timeout: v.timeout}

	account, err := client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	return &AccountCheck{
		CanTrade:    account.CanTrade,
		CanWithdraw: account.CanWithdraw,
		AccountType: account.AccountType,
		Permissions: account.Permissions,
	}, nil
}
