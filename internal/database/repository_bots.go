package database

import (
	"context"
	"encoding/json"
	"fmt"

	"tradebot-architect/internal/conversation"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const botColumns = `id::text, user_id, session_id::text, name, base_coin, strategy_type, trade_type,
		       status, is_public, cloned_from::text, config, created_at, updated_at`

// scanBot reads botColumns followed by any extra selected columns
func scanBot(row pgx.Row, extra ...interface{}) (*Bot, error) {
	bot := &Bot{}
	var raw []byte
	dest := append([]interface{}{
		&bot.ID, &bot.UserID, &bot.SessionID, &bot.Name, &bot.BaseCoin, &bot.StrategyType, &bot.TradeType,
		&bot.Status, &bot.IsPublic, &bot.ClonedFrom, &raw, &bot.CreatedAt, &bot.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	bot.Config = &conversation.BotSpecification{}
	if err := json.Unmarshal(raw, bot.Config); err != nil {
		return nil, fmt.Errorf("failed to decode bot config: %w", err)
	}
	return bot, nil
}

func (r *Repository) queryBots(ctx context.Context, query string, args ...interface{}) ([]*Bot, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bots := []*Bot{}
	for rows.Next() {
		bot, err := scanBot(rows)
		if err != nil {
			return nil, err
		}
		bots = append(bots, bot)
	}
	return bots, rows.Err()
}

// CreateBot stores a specification for userID. sessionID may be empty for
// bots that were not produced by a chat session.
func (r *Repository) CreateBot(ctx context.Context, userID, sessionID string, spec *conversation.BotSpecification) (*Bot, error) {
	return r.insertBot(ctx, userID, sessionID, "", spec)
}

func (r *Repository) insertBot(ctx context.Context, userID, sessionID, clonedFrom string, spec *conversation.BotSpecification) (*Bot, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bot config: %w", err)
	}
	query := `
		INSERT INTO bots (id, user_id, session_id, name, base_coin, strategy_type, trade_type, cloned_from, config)
		VALUES ($1, $2, NULLIF($3, '')::uuid, $4, $5, $6, $7, NULLIF($8, '')::uuid, $9)
		RETURNING ` + botColumns
	bot, err := scanBot(r.db.Pool.QueryRow(ctx, query,
		uuid.New().String(), userID, sessionID, spec.Name, spec.BaseCoin,
		string(spec.StrategyType), string(spec.TradeType), clonedFrom, raw,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to insert bot: %w", err)
	}
	return bot, nil
}

// GetBot returns a bot owned by userID
func (r *Repository) GetBot(ctx context.Context, userID, botID string) (*Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots WHERE id = $1 AND user_id = $2`
	bot, err := scanBot(r.db.Pool.QueryRow(ctx, query, botID, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return bot, nil
}

// saveSessionBotQuery upserts the single bot of a chat session. The conflict
// target matches idx_bots_session; xmax is zero only for freshly inserted rows.
const saveSessionBotQuery = `
		INSERT INTO bots (id, user_id, session_id, name, base_coin, strategy_type, trade_type, config)
		VALUES ($1, $2, $3::uuid, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id, session_id) WHERE session_id IS NOT NULL
		DO UPDATE SET name = EXCLUDED.name, base_coin = EXCLUDED.base_coin,
			strategy_type = EXCLUDED.strategy_type, trade_type = EXCLUDED.trade_type,
			config = EXCLUDED.config, updated_at = NOW()
		RETURNING ` + botColumns + `, (xmax = 0) AS inserted`

// SaveSessionBot creates the bot of a chat session, or replaces its
// specification when the session already produced one. created reports
// which of the two happened.
func (r *Repository) SaveSessionBot(ctx context.Context, userID, sessionID string, spec *conversation.BotSpecification) (*Bot, bool, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode bot config: %w", err)
	}
	var created bool
	bot, err := scanBot(r.db.Pool.QueryRow(ctx, saveSessionBotQuery,
		uuid.New().String(), userID, sessionID, spec.Name, spec.BaseCoin,
		string(spec.StrategyType), string(spec.TradeType), raw,
	), &created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to save session bot: %w", err)
	}
	return bot, created, nil
}

// ListBots returns the bots of a user, newest first
func (r *Repository) ListBots(ctx context.Context, userID string) ([]*Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryBots(ctx, query, userID)
}

// UpdateBotStatus sets the lifecycle status of a bot
func (r *Repository) UpdateBotStatus(ctx context.Context, userID, botID, status string) (*Bot, error) {
	if !ValidBotStatus(status) {
		return nil, fmt.Errorf("invalid bot status %q", status)
	}
	query := `
		UPDATE bots SET status = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + botColumns
	bot, err := scanBot(r.db.Pool.QueryRow(ctx, query, botID, userID, status))
	if err != nil {
		return nil, notFound(err)
	}
	return bot, nil
}

// SetBotPublic publishes or unpublishes a bot on the marketplace
func (r *Repository) SetBotPublic(ctx context.Context, userID, botID string, public bool) (*Bot, error) {
	query := `
		UPDATE bots SET is_public = $3, updated_at = NOW()
		WHERE id = $1 AND user_id = $2
		RETURNING ` + botColumns
	bot, err := scanBot(r.db.Pool.QueryRow(ctx, query, botID, userID, public))
	if err != nil {
		return nil, notFound(err)
	}
	return bot, nil
}

// DeleteBot removes a bot and its paper trades
func (r *Repository) DeleteBot(ctx context.Context, userID, botID string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM bots WHERE id = $1 AND user_id = $2`, botID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete bot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPublicBots returns marketplace bots, newest first
func (r *Repository) ListPublicBots(ctx context.Context, strategy string, limit, offset int) ([]*Bot, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `
		SELECT ` + botColumns + `
		FROM bots
		WHERE is_public AND ($1 = '' OR strategy_type = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.queryBots(ctx, query, strategy, limit, offset)
}

// CloneBot copies a public bot into userID's account. The copy starts
// paused and private.
func (r *Repository) CloneBot(ctx context.Context, userID, botID string) (*Bot, error) {
	query := `SELECT ` + botColumns + ` FROM bots WHERE id = $1 AND is_public`
	src, err := scanBot(r.db.Pool.QueryRow(ctx, query, botID))
	if err != nil {
		return nil, notFound(err)
	}

	clone, err := r.insertBot(ctx, userID, "", src.ID, src.Config)
	if err != nil {
		return nil, err
	}
	return r.UpdateBotStatus(ctx, userID, clone.ID, BotStatusPaused)
}
