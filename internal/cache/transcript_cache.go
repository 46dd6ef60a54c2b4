package cache

import (
	"context"
	"time"

	"tradebot-architect/internal/conversation"
)

// TranscriptCache keeps recent chat transcripts in Redis so a turn does not
// have to re-read the whole session from Postgres. Postgres stays the source
// of truth; every write path invalidates the cached copy.
type TranscriptCache struct {
	cs  *CacheService
	ttl time.Duration
}

// NewTranscriptCache wraps cs. A zero ttl falls back to DefaultTranscriptTTL.
func NewTranscriptCache(cs *CacheService, ttl time.Duration) *TranscriptCache {
	if ttl <= 0 {
		ttl = DefaultTranscriptTTL
	}
	return &TranscriptCache{cs: cs, ttl: ttl}
}

// Get returns the cached transcript. ErrMiss and ErrUnavailable are both
// expected and mean "read from the store".
func (tc *TranscriptCache) Get(ctx context.Context, userID, sessionID string) ([]conversation.Turn, error) {
	if tc == nil || tc.cs == nil {
		return nil, ErrUnavailable
	}
	var turns []conversation.Turn
	if err := tc.cs.GetJSON(ctx, TranscriptKey(userID, sessionID), &turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// Set stores the transcript until the TTL expires.
func (tc *TranscriptCache) Set(ctx context.Context, userID, sessionID string, turns []conversation.Turn) error {
	if tc == nil || tc.cs == nil {
		return ErrUnavailable
	}
	if turns == nil {
		turns = []conversation.Turn{}
	}
	return tc.cs.SetJSON(ctx, TranscriptKey(userID, sessionID), turns, tc.ttl)
}

// Invalidate drops the cached transcript.
func (tc *TranscriptCache) Invalidate(ctx context.Context, userID, sessionID string) error {
	if tc == nil || tc.cs == nil {
		return nil
	}
	return tc.cs.Delete(ctx, TranscriptKey(userID, sessionID))
}
