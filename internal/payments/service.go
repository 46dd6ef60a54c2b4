package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tradebot-architect/config"
	"tradebot-architect/internal/database"
	"tradebot-architect/internal/events"
	"tradebot-architect/internal/logging"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

var (
	ErrPaymentsDisabled = errors.New("payments are not configured")
	ErrUnknownPlan      = errors.New("unknown or free plan")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidAddress   = errors.New("withdrawal address is required")
	ErrPayoutFailed     = errors.New("payout failed")
)

// minTopUp is the smallest balance top-up accepted
var minTopUp = decimal.NewFromInt(5)

// refundTimeout bounds the refund of a failed payout. It runs detached from
// the request context, which may already be cancelled.
const refundTimeout = 10 * time.Second

func log() *logging.Logger {
	return logging.WithComponent("payments")
}

// Store persists payments, balances and withdrawals
type Store interface {
	CreatePayment(ctx context.Context, p *database.Payment) error
	ApplyPaymentUpdate(ctx context.Context, u database.PaymentUpdate, onFinished func(tx pgx.Tx, p *database.Payment) error) (*database.Payment, string, error)
	ListPayments(ctx context.Context, userID string) ([]*database.Payment, error)
	ListAllPayments(ctx context.Context, status string, limit, offset int) ([]*database.Payment, error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)
	CreateWithdrawal(ctx context.Context, w *database.Withdrawal) error
	MarkWithdrawalProcessing(ctx context.Context, id, payoutID string) error
	FailWithdrawal(ctx context.Context, w *database.Withdrawal, reason string) error
	ListWithdrawals(ctx context.Context, userID string) ([]*database.Withdrawal, error)
	GetSubscription(ctx context.Context, userID string) (*database.Subscription, error)
}

// BalanceCache is the read-through cache in front of GetBalance
type BalanceCache interface {
	Get(ctx context.Context, userID string) (decimal.Decimal, error)
	Set(ctx context.Context, userID string, balance decimal.Decimal) error
	Invalidate(ctx context.Context, userID string) error
}

// CreateInvoiceRequest is the body of POST /api/payments/invoices. Exactly
// one of Plan and AmountUSD is expected.
type CreateInvoiceRequest struct {
	Plan      string          `json:"plan"`
	AmountUSD decimal.Decimal `json:"amount_usd"`
}

// WithdrawalRequest is the body of POST /api/withdrawals
type WithdrawalRequest struct {
	AmountUSD decimal.Decimal `json:"amount_usd"`
	Currency  string          `json:"currency"`
	Address   string          `json:"address"`
}

// Service handles invoices, IPN callbacks and withdrawals
type Service struct {
	store     Store
	gateway   Gateway
	cfg       config.PaymentsConfig
	ipnURL    string
	publisher events.Publisher
	balances  BalanceCache

	creditBalance func(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) (decimal.Decimal, error)
	activatePlan  func(ctx context.Context, tx pgx.Tx, userID, plan string, period time.Duration) (*database.Subscription, error)
}

// NewService creates the payments service. gateway may be nil when payments
// are disabled; reads keep working.
func NewService(cfg config.PaymentsConfig, publicBaseURL string, store Store, gateway Gateway) *Service {
	ipnURL := ""
	if publicBaseURL != "" {
		ipnURL = strings.TrimRight(publicBaseURL, "/") + "/api/payments/webhook"
	}
	return &Service{
		store:         store,
		gateway:       gateway,
		cfg:           cfg,
		ipnURL:        ipnURL,
		creditBalance: database.CreditBalanceTx,
		activatePlan:  database.ActivateSubscriptionTx,
	}
}

// SetPublisher sets the event publisher
func (s *Service) SetPublisher(p events.Publisher) {
	s.publisher = p
}

// SetCache enables balance caching
func (s *Service) SetCache(c BalanceCache) {
	s.balances = c
}

func (s *Service) invalidateBalance(ctx context.Context, userID string) {
	if s.balances == nil {
		return
	}
	if err := s.balances.Invalidate(ctx, userID); err != nil {
		log().WithError(err).Warn("Failed to invalidate cached balance", "user_id", userID)
	}
}

func (s *Service) publish(e events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(e)
	}
}

// CreateInvoice opens an invoice for a plan or a balance top-up
func (s *Service) CreateInvoice(ctx context.Context, userID string, req CreateInvoiceRequest) (*database.Payment, error) {
	if s.gateway == nil {
		return nil, ErrPaymentsDisabled
	}

	p := &database.Payment{
		ID:      uuid.NewString(),
		UserID:  userID,
		OrderID: uuid.NewString(),
		Status:  database.PaymentStatusWaiting,
	}
	description := ""

	if req.Plan != "" {
		plan, ok := PlanByID(strings.ToLower(req.Plan))
		if !ok || plan.ID == PlanFree {
			return nil, ErrUnknownPlan
		}
		p.Kind = database.PaymentKindSubscription
		p.Plan = &plan.ID
		p.AmountUSD = plan.PriceUSD
		description = fmt.Sprintf("%s plan, %d days", plan.Name, plan.PeriodDays)
	} else {
		if req.AmountUSD.LessThan(minTopUp) {
			return nil, fmt.Errorf("%w: top-up must be at least %s USD", ErrInvalidAmount, minTopUp)
		}
		p.Kind = database.PaymentKindTopUp
		p.AmountUSD = req.AmountUSD.Round(2)
		description = "Balance top-up"
	}

	invoice, err := s.gateway.CreateInvoice(ctx, InvoiceRequest{
		PriceAmount:      p.AmountUSD,
		PriceCurrency:    "usd",
		PayCurrency:      s.cfg.PayCurrency,
		OrderID:          p.OrderID,
		OrderDescription: description,
		IPNCallbackURL:   s.ipnURL,
	})
	if err != nil {
		return nil, err
	}
	p.InvoiceID = &invoice.ID
	p.InvoiceURL = &invoice.InvoiceURL
	if s.cfg.PayCurrency != "" {
		p.PayCurrency = &s.cfg.PayCurrency
	}

	if err := s.store.CreatePayment(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to store payment: %w", err)
	}

	logging.PaymentContext(p.OrderID, p.Status).Info("Invoice created", "kind", p.Kind, "amount_usd", p.AmountUSD.String())
	return p, nil
}

// HandleWebhook verifies and applies an IPN callback. Replays of a finished
// payment do not credit twice.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, signature string) (*database.Payment, error) {
	if err := VerifySignature(body, signature, s.cfg.IPNSecret); err != nil {
		return nil, err
	}
	n, err := ParseNotification(body)
	if err != nil {
		return nil, err
	}

	update := database.PaymentUpdate{
		OrderID:           n.OrderID,
		Status:            n.PaymentStatus,
		ProviderPaymentID: n.PaymentID,
		ActuallyPaid:      n.ActuallyPaid,
	}
	payment, previous, err := s.store.ApplyPaymentUpdate(ctx, update, func(tx pgx.Tx, p *database.Payment) error {
		return s.fulfil(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}

	if payment.Kind == database.PaymentKindTopUp && payment.Status == database.PaymentStatusFinished && previous != payment.Status {
		s.invalidateBalance(ctx, payment.UserID)
	}

	if previous != payment.Status {
		logging.PaymentContext(payment.OrderID, payment.Status).Info("Payment status changed", "previous", previous)
		s.publish(events.PaymentUpdated(payment.UserID, payment.OrderID, payment.Status, payment.Kind))
	}
	return payment, nil
}

func (s *Service) fulfil(ctx context.Context, tx pgx.Tx, p *database.Payment) error {
	switch p.Kind {
	case database.PaymentKindTopUp:
		balance, err := s.creditBalance(ctx, tx, p.UserID, p.AmountUSD)
		if err != nil {
			return err
		}
		log().Info("Balance credited", "user_id", p.UserID, "amount_usd", p.AmountUSD.String(), "balance", balance.String())
	case database.PaymentKindSubscription:
		if p.Plan == nil {
			return fmt.Errorf("subscription payment %s has no plan", p.OrderID)
		}
		plan, ok := PlanByID(*p.Plan)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPlan, *p.Plan)
		}
		sub, err := s.activatePlan(ctx, tx, p.UserID, plan.ID, plan.Period())
		if err != nil {
			return err
		}
		log().Info("Subscription activated", "user_id", p.UserID, "plan", sub.Plan, "expires_at", sub.ExpiresAt)
	default:
		return fmt.Errorf("unknown payment kind %q", p.Kind)
	}
	return nil
}

// RequestWithdrawal debits the balance and asks the gateway for a payout. A
// rejected payout is refunded.
func (s *Service) RequestWithdrawal(ctx context.Context, userID string, req WithdrawalRequest) (*database.Withdrawal, error) {
	if s.gateway == nil {
		return nil, ErrPaymentsDisabled
	}
	minimum := decimal.NewFromFloat(s.cfg.MinWithdrawal)
	if !req.AmountUSD.IsPositive() || req.AmountUSD.LessThan(minimum) {
		return nil, fmt.Errorf("%w: minimum withdrawal is %s USD", ErrInvalidAmount, minimum)
	}
	address := strings.TrimSpace(req.Address)
	if address == "" {
		return nil, ErrInvalidAddress
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = s.cfg.PayCurrency
	}

	w := &database.Withdrawal{
		ID:        uuid.NewString(),
		UserID:    userID,
		AmountUSD: req.AmountUSD.Round(2),
		Currency:  currency,
		Address:   address,
		Status:    database.WithdrawalStatusPending,
	}
	if err := s.store.CreateWithdrawal(ctx, w); err != nil {
		return nil, err
	}
	s.invalidateBalance(ctx, userID)

	payout, err := s.gateway.CreatePayout(ctx, PayoutRequest{
		Address:        w.Address,
		Currency:       w.Currency,
		Amount:         w.AmountUSD,
		IPNCallbackURL: s.ipnURL,
	})
	if err != nil {
		log().WithError(err).Warn("Payout rejected, refunding", "withdrawal_id", w.ID)
		s.refund(ctx, w, err.Error())
		return nil, fmt.Errorf("%w: %v", ErrPayoutFailed, err)
	}

	if err := s.store.MarkWithdrawalProcessing(ctx, w.ID, payout.ID); err != nil {
		log().WithError(err).Error("Failed to record payout id", "withdrawal_id", w.ID, "payout_id", payout.ID)
	}
	w.Status = database.WithdrawalStatusProcessing
	w.PayoutID = &payout.ID

	s.publish(events.WithdrawalCreated(userID, w.ID, w.AmountUSD.StringFixed(2), w.Status))
	return w, nil
}

// refund reverses the debit of a withdrawal whose payout failed
func (s *Service) refund(ctx context.Context, w *database.Withdrawal, reason string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refundTimeout)
	defer cancel()

	if err := s.store.FailWithdrawal(ctx, w, reason); err != nil {
		log().WithError(err).Error("Failed to refund withdrawal", "withdrawal_id", w.ID, "user_id", w.UserID)
		return
	}
	s.invalidateBalance(ctx, w.UserID)
}

// Balance returns the user's balance in USD
func (s *Service) Balance(ctx context.Context, userID string) (decimal.Decimal, error) {
	if s.balances != nil {
		if balance, err := s.balances.Get(ctx, userID); err == nil {
			return balance, nil
		}
	}

	balance, err := s.store.GetBalance(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	if s.balances != nil {
		if err := s.balances.Set(ctx, userID, balance); err != nil {
			log().WithError(err).Debug("Failed to cache balance", "user_id", userID)
		}
	}
	return balance, nil
}

// Subscription returns the user's current plan
func (s *Service) Subscription(ctx context.Context, userID string) (*database.Subscription, error) {
	return s.store.GetSubscription(ctx, userID)
}

// Payments lists the user's invoices
func (s *Service) Payments(ctx context.Context, userID string) ([]*database.Payment, error) {
	return s.store.ListPayments(ctx, userID)
}

// Withdrawals lists the user's withdrawals
func (s *Service) Withdrawals(ctx context.Context, userID string) ([]*database.Withdrawal, error) {
	return s.store.ListWithdrawals(ctx, userID)
}

// AllPayments lists payments across users
func (s *Service) AllPayments(ctx context.Context, status string, limit, offset int) ([]*database.Payment, error) {
	return s.store.ListAllPayments(ctx, status, limit, offset)
}

func knownStatus(status string) bool {
	switch status {
	case database.PaymentStatusWaiting, database.PaymentStatusConfirming, database.PaymentStatusConfirmed,
		database.PaymentStatusSending, database.PaymentStatusPartiallyPaid, database.PaymentStatusFinished,
		database.PaymentStatusFailed, database.PaymentStatusRefunded, database.PaymentStatusExpired:
		return true
	}
	return false
}
