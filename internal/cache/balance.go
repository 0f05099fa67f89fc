package cache

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	balanceKeyPrefix = "user_balance_"

	// BalanceTTL bounds how stale a cached balance can get. The cache is
	// advisory: mutations never consult it, only plain balance reads do.
	BalanceTTL = 600 * time.Second
)

// BalanceCache is a Redis-backed read accelerator for account balances.
// Writes log and swallow errors; a cache miss is never a fault.
type BalanceCache struct {
	client *redis.Client
}

func NewBalanceCache(client *redis.Client) *BalanceCache {
	return &BalanceCache{client: client}
}

// Get returns the cached balance for a user, or false on any miss or
// decode failure.
func (c *BalanceCache) Get(ctx context.Context, userID string) (decimal.Decimal, bool) {
	data, err := c.client.Get(ctx, balanceKeyPrefix+userID).Result()
	if err != nil {
		return decimal.Zero, false
	}
	balance, err := decimal.NewFromString(data)
	if err != nil {
		log.Printf("BalanceCache: bad cached value for user %s: %v", userID, err)
		return decimal.Zero, false
	}
	return balance, true
}

// Set stores the balance with the fixed TTL. Failures are logged, never
// returned: the ledger write already committed.
func (c *BalanceCache) Set(ctx context.Context, userID string, balance decimal.Decimal) {
	key := balanceKeyPrefix + userID
	if err := c.client.Set(ctx, key, balance.StringFixed(2), BalanceTTL).Err(); err != nil {
		log.Printf("BalanceCache: write error for user %s: %v", userID, err)
	}
}
