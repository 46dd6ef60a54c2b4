package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tradebot-architect/config"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

// Gateway is the subset of the NowPayments API the service uses
type Gateway interface {
	CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error)
	CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error)
}

// InvoiceRequest is sent to POST /invoice
type InvoiceRequest struct {
	PriceAmount      decimal.Decimal
	PriceCurrency    string
	PayCurrency      string
	OrderID          string
	OrderDescription string
	IPNCallbackURL   string
	SuccessURL       string
	CancelURL        string
}

// Invoice is the hosted checkout page created by the gateway
type Invoice struct {
	ID         string
	InvoiceURL string
}

// PayoutRequest describes a single mass-payout withdrawal
type PayoutRequest struct {
	Address        string
	Currency       string
	Amount         decimal.Decimal
	IPNCallbackURL string
}

// Payout is the gateway's record of a payout batch
type Payout struct {
	ID     string
	Status string
}

// APIError is a non-2xx reply from the gateway
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("nowpayments API error: %d - %s", e.StatusCode, e.Message)
}

// NowPaymentsClient talks to the NowPayments REST API
type NowPaymentsClient struct {
	apiKey      string
	payoutToken string
	baseURL     string
	httpClient  *http.Client
}

// NewNowPaymentsClient creates a new gateway client
func NewNowPaymentsClient(cfg config.PaymentsConfig) *NowPaymentsClient {
	return &NowPaymentsClient{
		apiKey:      cfg.APIKey,
		payoutToken: cfg.PayoutToken,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateInvoice creates a hosted invoice
func (c *NowPaymentsClient) CreateInvoice(ctx context.Context, req InvoiceRequest) (*Invoice, error) {
	body := map[string]interface{}{
		"price_amount":   json.Number(req.PriceAmount.String()),
		"price_currency": req.PriceCurrency,
		"order_id":       req.OrderID,
	}
	optional := map[string]string{
		"pay_currency":      req.PayCurrency,
		"order_description": req.OrderDescription,
		"ipn_callback_url":  req.IPNCallbackURL,
		"success_url":       req.SuccessURL,
		"cancel_url":        req.CancelURL,
	}
	for k, v := range optional {
		if v != "" {
			body[k] = v
		}
	}

	resp, err := c.makeRequest(ctx, http.MethodPost, "/invoice", body, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create invoice: %w", err)
	}

	invoice := &Invoice{
		ID:         gjson.GetBytes(resp, "id").String(),
		InvoiceURL: gjson.GetBytes(resp, "invoice_url").String(),
	}
	if invoice.ID == "" || invoice.InvoiceURL == "" {
		return nil, fmt.Errorf("invoice response missing id or invoice_url: %s", resp)
	}
	return invoice, nil
}

// CreatePayout requests a single-withdrawal payout
func (c *NowPaymentsClient) CreatePayout(ctx context.Context, req PayoutRequest) (*Payout, error) {
	body := map[string]interface{}{
		"ipn_callback_url": req.IPNCallbackURL,
		"withdrawals": []map[string]interface{}{{
			"address":  req.Address,
			"currency": req.Currency,
			"amount":   json.Number(req.Amount.String()),
		}},
	}

	resp, err := c.makeRequest(ctx, http.MethodPost, "/payout", body, true)
	if err != nil {
		return nil, fmt.Errorf("failed to create payout: %w", err)
	}

	payout := &Payout{
		ID:     gjson.GetBytes(resp, "id").String(),
		Status: strings.ToLower(gjson.GetBytes(resp, "withdrawals.0.status").String()),
	}
	if payout.ID == "" {
		return nil, fmt.Errorf("payout response missing id: %s", resp)
	}
	return payout, nil
}

func (c *NowPaymentsClient) makeRequest(ctx context.Context, method, path string, payload interface{}, payout bool) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	if payout && c.payoutToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.payoutToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		msg := gjson.GetBytes(respBody, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	return respBody, nil
}
