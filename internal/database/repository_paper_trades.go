package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ReplacePaperTrades swaps the simulated history of a bot for trades in one
// transaction
func (r *Repository) ReplacePaperTrades(ctx context.Context, userID, botID string, trades []*PaperTrade) error {
	query := `
		INSERT INTO paper_trades (id, bot_id, user_id, symbol, side, entry_price, exit_price, quantity,
		                          leverage, pnl, pnl_percent, outcome, opened_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	return r.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM paper_trades WHERE bot_id = $1 AND user_id = $2`, botID, userID); err != nil {
			return fmt.Errorf("failed to clear paper trades: %w", err)
		}
		if len(trades) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for _, t := range trades {
			batch.Queue(query,
				t.ID, t.BotID, t.UserID, t.Symbol, t.Side, t.EntryPrice, t.ExitPrice, t.Quantity,
				t.Leverage, t.PnL, t.PnLPercent, t.Outcome, t.OpenedAt, t.ClosedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert paper trades: %w", err)
		}
		return nil
	})
}

// ListPaperTrades returns the simulated trades of a bot owned by userID
func (r *Repository) ListPaperTrades(ctx context.Context, userID, botID string, limit int) ([]*PaperTrade, error) {
	if limit <= 0 || limit > 1000 {
		limit = 500
	}
	query := `
		SELECT id::text, bot_id::text, user_id, symbol, side, entry_price, exit_price, quantity,
		       leverage, pnl, pnl_percent, outcome, opened_at, closed_at
		FROM paper_trades
		WHERE bot_id = $1 AND user_id = $2
		ORDER BY opened_at ASC
		LIMIT $3
	`
	rows, err := r.db.Pool.Query(ctx, query, botID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query paper trades: %w", err)
	}
	defer rows.Close()

	trades := []*PaperTrade{}
	for rows.Next() {
		t := &PaperTrade{}
		err := rows.Scan(
			&t.ID, &t.BotID, &t.UserID, &t.Symbol, &t.Side, &t.EntryPrice, &t.ExitPrice, &t.Quantity,
			&t.Leverage, &t.PnL, &t.PnLPercent, &t.Outcome, &t.OpenedAt, &t.ClosedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan paper trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// DeletePaperTrades clears the simulated history of a bot
func (r *Repository) DeletePaperTrades(ctx context.Context, userID, botID string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM paper_trades WHERE bot_id = $1 AND user_id = $2`, botID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete paper trades: %w", err)
	}
	return tag.RowsAffected(), nil
}
