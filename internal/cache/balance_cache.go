package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceCache keeps user balances for a short while. Every balance change
// invalidates the entry; the TTL only bounds staleness after a missed
// invalidation.
type BalanceCache struct {
	cs  *CacheService
	ttl time.Duration
}

// NewBalanceCache wraps cs. A zero ttl falls back to DefaultBalanceTTL.
func NewBalanceCache(cs *CacheService, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = DefaultBalanceTTL
	}
	return &BalanceCache{cs: cs, ttl: ttl}
}

// Get returns the cached balance. ErrMiss and ErrUnavailable mean "read from
// the store".
func (bc *BalanceCache) Get(ctx context.Context, userID string) (decimal.Decimal, error) {
	if bc == nil || bc.cs == nil {
		return decimal.Zero, ErrUnavailable
	}
	raw, err := bc.cs.Get(ctx, BalanceKey(userID))
	if err != nil {
		return decimal.Zero, err
	}
	balance, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("corrupt cached balance: %w", err)
	}
	return balance, nil
}

// Set stores the balance until the TTL expires.
func (bc *BalanceCache) Set(ctx context.Context, userID string, balance decimal.Decimal) error {
	if bc == nil || bc.cs == nil {
		return ErrUnavailable
	}
	return bc.cs.Set(ctx, BalanceKey(userID), balance.String(), bc.ttl)
}

// Invalidate drops the cached balance.
func (bc *BalanceCache) Invalidate(ctx context.Context, userID string) error {
	if bc == nil || bc.cs == nil {
		return nil
	}
	return bc.cs.Delete(ctx, BalanceKey(userID))
}
