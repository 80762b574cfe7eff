package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/dextrustee/dexbridge/internal/domain"
)

// settledSetKey is the Redis set holding every settled trade id.
const settledSetKey = "settled:trade_ids"

// SettledCache implements domain.SettledIDCache using a Redis set. It fronts
// the Postgres settlement records so the reconciler can drop already-handled
// trades without a full ProcessedIDs query on every poll. The set carries no
// TTL; entries are tiny and the authoritative copy lives in Postgres anyway.
type SettledCache struct {
	rdb *redis.Client
}

// NewSettledCache creates a SettledCache backed by the given Client.
func NewSettledCache(c *Client) *SettledCache {
	return &SettledCache{rdb: c.Underlying()}
}

// Contains reports whether the trade id is known settled. A false return
// is not authoritative; the caller must still consult the settlement store.
func (sc *SettledCache) Contains(ctx context.Context, tradeID string) (bool, error) {
	ok, err := sc.rdb.SIsMember(ctx, settledSetKey, tradeID).Result()
	if err != nil {
		return false, fmt.Errorf("redis: settled contains %s: %w", tradeID, err)
	}
	return ok, nil
}

// Add records the trade id as settled.
func (sc *SettledCache) Add(ctx context.Context, tradeID string) error {
	if err := sc.rdb.SAdd(ctx, settledSetKey, tradeID).Err(); err != nil {
		return fmt.Errorf("redis: settled add %s: %w", tradeID, err)
	}
	return nil
}

// Warm bulk-loads trade ids into the set, typically from the settlement
// store at startup.
func (sc *SettledCache) Warm(ctx context.Context, tradeIDs []string) error {
	if len(tradeIDs) == 0 {
		return nil
	}
	members := make([]any, len(tradeIDs))
	for i, id := range tradeIDs {
		members[i] = id
	}
	if err := sc.rdb.SAdd(ctx, settledSetKey, members...).Err(); err != nil {
		return fmt.Errorf("redis: settled warm: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SettledIDCache = (*SettledCache)(nil)
