package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const exchangeKeyColumns = `id::text, user_id, exchange, label, api_key, secret_ciphertext, secret_last4,
		       vault_stored, last_tested_at, created_at`

func scanExchangeKey(row pgx.Row) (*ExchangeKey, error) {
	k := &ExchangeKey{}
	err := row.Scan(
		&k.ID, &k.UserID, &k.Exchange, &k.Label, &k.APIKey, &k.SecretCiphertext, &k.SecretLast4,
		&k.VaultStored, &k.LastTestedAt, &k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return k, nil
}

// CreateExchangeKey stores a credential row
func (r *Repository) CreateExchangeKey(ctx context.Context, k *ExchangeKey) error {
	query := `
		INSERT INTO exchange_keys (id, user_id, exchange, label, api_key, secret_ciphertext, secret_last4, vault_stored)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`
	return r.db.Pool.QueryRow(ctx, query,
		k.ID, k.UserID, k.Exchange, k.Label, k.APIKey, k.SecretCiphertext, k.SecretLast4, k.VaultStored,
	).Scan(&k.CreatedAt)
}

// GetExchangeKey returns one credential of a user
func (r *Repository) GetExchangeKey(ctx context.Context, userID, id string) (*ExchangeKey, error) {
	query := `SELECT ` + exchangeKeyColumns + ` FROM exchange_keys WHERE id = $1 AND user_id = $2`
	k, err := scanExchangeKey(r.db.Pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return k, nil
}

// ListExchangeKeys returns the credentials of a user
func (r *Repository) ListExchangeKeys(ctx context.Context, userID string) ([]*ExchangeKey, error) {
	query := `SELECT ` + exchangeKeyColumns + ` FROM exchange_keys WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query exchange keys: %w", err)
	}
	defer rows.Close()

	keys := []*ExchangeKey{}
	for rows.Next() {
		k, err := scanExchangeKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan exchange key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// TouchExchangeKey records a successful credential test
func (r *Repository) TouchExchangeKey(ctx context.Context, userID, id string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE exchange_keys SET last_tested_at = NOW() WHERE id = $1 AND user_id = $2`, id, userID)
	return err
}

// DeleteExchangeKey removes a credential row
func (r *Repository) DeleteExchangeKey(ctx context.Context, userID, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM exchange_keys WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete exchange key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
