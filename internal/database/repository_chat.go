package database

import (
	"context"
	"fmt"

	"tradebot-architect/internal/conversation"
	"tradebot-architect/internal/logging"

	"github.com/jackc/pgx/v5"
)

// ListTurns returns the transcript of a session in insertion order
func (r *Repository) ListTurns(ctx context.Context, userID, sessionID string) ([]conversation.Turn, error) {
	query := `
		SELECT role, content, COALESCE(stage, '')
		FROM chat_messages
		WHERE user_id = $1 AND session_id = $2
		ORDER BY id ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}
	defer rows.Close()

	turns := []conversation.Turn{}
	for rows.Next() {
		var t conversation.Turn
		var role string
		if err := rows.Scan(&role, &t.Text, &t.Stage); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		t.Role = conversation.Role(role)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// AppendTurns stores turns for a session atomically
func (r *Repository) AppendTurns(ctx context.Context, userID, sessionID, model string, turns ...conversation.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	query := `
		INSERT INTO chat_messages (user_id, session_id, role, content, stage, model)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
	`
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, t := range turns {
			batch.Queue(query, userID, sessionID, string(t.Role), t.Text, t.Stage, model)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		logging.DatabaseContext("insert", "chat_messages").WithError(err).Error("Failed to append chat turns", "session_id", sessionID)
		return fmt.Errorf("failed to append chat turns: %w", err)
	}
	return nil
}

// DeleteSession removes every message of a session. Bots created from the
// session keep existing.
func (r *Repository) DeleteSession(ctx context.Context, userID, sessionID string) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx,
		`DELETE FROM chat_messages WHERE user_id = $1 AND session_id = $2`,
		userID, sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chat session: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListSessions summarises the sessions of a user, most recent first
func (r *Repository) ListSessions(ctx context.Context, userID string, limit int) ([]*ChatSession, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `
		SELECT m.session_id::text,
		       COUNT(*),
		       (SELECT content FROM chat_messages f
		         WHERE f.user_id = m.user_id AND f.session_id = m.session_id
		         ORDER BY f.id ASC LIMIT 1),
		       MAX(m.created_at),
		       (SELECT b.id::text FROM bots b
		         WHERE b.user_id = m.user_id AND b.session_id = m.session_id
		         ORDER BY b.created_at DESC LIMIT 1)
		FROM chat_messages m
		WHERE m.user_id = $1
		GROUP BY m.user_id, m.session_id
		ORDER BY MAX(m.created_at) DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*ChatSession
	for rows.Next() {
		s := &ChatSession{}
		if err := rows.Scan(&s.SessionID, &s.MessageCount, &s.FirstMessage, &s.LastMessageAt, &s.BotID); err != nil {
			return nil, fmt.Errorf("failed to scan chat session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
