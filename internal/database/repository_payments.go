package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ============================================================================
// PAYMENTS
// ============================================================================

const paymentColumns = `id::text, user_id, order_id, kind, plan, amount_usd, pay_currency, invoice_id, invoice_url,
		       provider_payment_id, actually_paid, status, created_at, updated_at`

func scanPayment(row pgx.Row) (*Payment, error) {
	p := &Payment{}
	err := row.Scan(
		&p.ID, &p.UserID, &p.OrderID, &p.Kind, &p.Plan, &p.AmountUSD, &p.PayCurrency, &p.InvoiceID, &p.InvoiceURL,
		&p.ProviderPaymentID, &p.ActuallyPaid, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreatePayment inserts a payment row for a freshly created invoice
func (r *Repository) CreatePayment(ctx context.Context, p *Payment) error {
	query := `
		INSERT INTO payments (id, user_id, order_id, kind, plan, amount_usd, pay_currency, invoice_id, invoice_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		p.ID, p.UserID, p.OrderID, p.Kind, p.Plan, p.AmountUSD, p.PayCurrency, p.InvoiceID, p.InvoiceURL, p.Status,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// PaymentUpdate carries the fields an IPN callback may change
type PaymentUpdate struct {
	OrderID           string
	Status            string
	ProviderPaymentID string
	ActuallyPaid      *decimal.Decimal
}

// ApplyPaymentUpdate records a gateway status change and returns the payment
// along with the status it had before. The row is locked for the duration so
// concurrent callbacks for the same order see a consistent previous status.
// onFinished runs inside the same transaction when the payment transitions
// into finished.
func (r *Repository) ApplyPaymentUpdate(ctx context.Context, u PaymentUpdate, onFinished func(tx pgx.Tx, p *Payment) error) (*Payment, string, error) {
	var (
		payment  *Payment
		previous string
	)
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT status FROM payments WHERE order_id = $1 FOR UPDATE`, u.OrderID).Scan(&previous)
		if err != nil {
			return notFound(err)
		}

		query := `
			UPDATE payments
			SET status = $2,
			    provider_payment_id = COALESCE(NULLIF($3, ''), provider_payment_id),
			    actually_paid = COALESCE($4, actually_paid),
			    updated_at = NOW()
			WHERE order_id = $1
			RETURNING ` + paymentColumns
		payment, err = scanPayment(tx.QueryRow(ctx, query, u.OrderID, u.Status, u.ProviderPaymentID, u.ActuallyPaid))
		if err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}

		if u.Status == PaymentStatusFinished && previous != PaymentStatusFinished && onFinished != nil {
			return onFinished(tx, payment)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return payment, previous, nil
}

// ListPayments returns the payments of a user, newest first
func (r *Repository) ListPayments(ctx context.Context, userID string) ([]*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryPayments(ctx, query, userID)
}

// ListAllPayments returns payments across users for administrators
func (r *Repository) ListAllPayments(ctx context.Context, status string, limit, offset int) ([]*Payment, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.queryPayments(ctx, query, status, limit, offset)
}

func (r *Repository) queryPayments(ctx context.Context, query string, args ...interface{}) ([]*Payment, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	payments := []*Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ============================================================================
// BALANCES
// ============================================================================

// GetBalance returns the balance of a user, zero when none was ever credited
func (r *Repository) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := r.db.Pool.QueryRow(ctx, `SELECT balance FROM user_balances WHERE user_id = $1`, userID).Scan(&balance)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

// CreditBalanceTx adds amount to a user balance inside tx
func CreditBalanceTx(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	query := `
		INSERT INTO user_balances (user_id, balance, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET balance = user_balances.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance
	`
	if err := tx.QueryRow(ctx, query, userID, amount).Scan(&balance); err != nil {
		return decimal.Zero, fmt.Errorf("failed to credit balance: %w", err)
	}
	return balance, nil
}

// debitBalanceTx subtracts amount, failing with ErrInsufficientBalance
// rather than going negative
func debitBalanceTx(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	query := `
		UPDATE user_balances
		SET balance = balance - $2, updated_at = NOW()
		WHERE user_id = $1 AND balance >= $2
		RETURNING balance
	`
	if err := tx.QueryRow(ctx, query, userID, amount).Scan(&balance); err != nil {
		if notFound(err) == ErrNotFound {
			return decimal.Zero, ErrInsufficientBalance
		}
		return decimal.Zero, fmt.Errorf("failed to debit balance: %w", err)
	}
	return balance, nil
}

// ============================================================================
// WITHDRAWALS
// ============================================================================

const withdrawalColumns = `id::text, user_id, amount_usd, currency, address, status, payout_id, failure_reason, created_at, updated_at`

func scanWithdrawal(row pgx.Row) (*Withdrawal, error) {
	w := &Withdrawal{}
	err := row.Scan(
		&w.ID, &w.UserID, &w.AmountUSD, &w.Currency, &w.Address, &w.Status, &w.PayoutID, &w.FailureReason,
		&w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// CreateWithdrawal debits the balance and records the withdrawal atomically
func (r *Repository) CreateWithdrawal(ctx context.Context, w *Withdrawal) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := debitBalanceTx(ctx, tx, w.UserID, w.AmountUSD); err != nil {
			return err
		}
		query := `
			INSERT INTO withdrawals (id, user_id, amount_usd, currency, address, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at, updated_at
		`
		return tx.QueryRow(ctx, query, w.ID, w.UserID, w.AmountUSD, w.Currency, w.Address, w.Status).
			Scan(&w.CreatedAt, &w.UpdatedAt)
	})
}

// MarkWithdrawalProcessing records the payout id returned by the gateway
func (r *Repository) MarkWithdrawalProcessing(ctx context.Context, id, payoutID string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE withdrawals SET status = $2, payout_id = $3, updated_at = NOW() WHERE id = $1
	`, id, WithdrawalStatusProcessing, payoutID)
	return err
}

// FailWithdrawal marks a withdrawal failed and refunds its amount
func (r *Repository) FailWithdrawal(ctx context.Context, w *Withdrawal, reason string) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE withdrawals SET status = $2, failure_reason = $3, updated_at = NOW()
			WHERE id = $1 AND status <> $2
		`, w.ID, WithdrawalStatusFailed, reason)
		if err != nil {
			return fmt.Errorf("failed to mark withdrawal failed: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		_, err = CreditBalanceTx(ctx, tx, w.UserID, w.AmountUSD)
		return err
	})
}

// ListWithdrawals returns the withdrawals of a user, newest first
func (r *Repository) ListWithdrawals(ctx context.Context, userID string) ([]*Withdrawal, error) {
	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query withdrawals: %w", err)
	}
	defer rows.Close()

	withdrawals := []*Withdrawal{}
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan withdrawal: %w", err)
		}
		withdrawals = append(withdrawals, w)
	}
	return withdrawals, rows.Err()
}

// ============================================================================
// SUBSCRIPTIONS
// ============================================================================

// ActivateSubscriptionTx sets the plan of a user inside tx. An active plan of
// the same tier is extended rather than reset.
func ActivateSubscriptionTx(ctx context.Context, tx pgx.Tx, userID, plan string, period time.Duration) (*Subscription, error) {
	s := &Subscription{}
	query := `
		INSERT INTO subscriptions (user_id, plan, status, expires_at, updated_at)
		VALUES ($1, $2, 'active', NOW() + $3::interval, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET plan = EXCLUDED.plan,
		    status = 'active',
		    expires_at = CASE
		        WHEN subscriptions.plan = EXCLUDED.plan AND subscriptions.expires_at > NOW()
		        THEN subscriptions.expires_at + $3::interval
		        ELSE EXCLUDED.expires_at
		    END,
		    updated_at = NOW()
		RETURNING user_id, plan, status, expires_at, updated_at
	`
	interval := fmt.Sprintf("%d seconds", int64(period.Seconds()))
	err := tx.QueryRow(ctx, query, userID, plan, interval).
		Scan(&s.UserID, &s.Plan, &s.Status, &s.ExpiresAt, &s.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to activate subscription: %w", err)
	}
	return s, nil
}

// GetSubscription returns the plan of a user. Users without a row, or whose
// plan lapsed, are on the free plan.
func (r *Repository) GetSubscription(ctx context.Context, userID string) (*Subscription, error) {
	s := &Subscription{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT user_id, plan, status, expires_at, updated_at FROM subscriptions WHERE user_id = $1
	`, userID).Scan(&s.UserID, &s.Plan, &s.Status, &s.ExpiresAt, &s.UpdatedAt)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return &Subscription{UserID: userID, Plan: "free", Status: "active", UpdatedAt: time.Now()}, nil
		}
		return nil, fmt.Errorf("failed to read subscription: %w", err)
	}
	if s.ExpiresAt != nil && s.ExpiresAt.Before(time.Now()) {
		s.Plan = "free"
		s.Status = "expired"
	}
	return s, nil
}
