package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"crypto-collector/internal/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const balanceNamespace = "collector:balance:v1"

// NewRedisClient returns a single-node or cluster client
func NewRedisClient(addrs []string, password string, useCluster bool) redis.UniversalClient {
	if useCluster && len(addrs) > 1 {
		return redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:    addrs,
			Password: password,
		})
	}

	return redis.NewClient(&redis.Options{
		Addr:            addrs[0],
		Password:        password,
		DB:              0,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
		MaxRetries:      3,
	})
}

// BalanceCache holds the last complete balance of each chain.
// Degraded balances are never written, so a cached value is always authoritative
// as of its FetchedAt.
type BalanceCache struct {
	client redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewBalanceCache(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl, logger: logger}
}

func balanceKey(chain domain.Chain) string {
	return balanceNamespace + ":" + string(chain)
}

// Get returns the cached balance; ok is false on a miss
func (c *BalanceCache) Get(ctx context.Context, chain domain.Chain) (balance domain.ChainBalance, ok bool, err error) {
	data, err := c.client.Get(ctx, balanceKey(chain)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ChainBalance{}, false, nil
	}
	if err != nil {
		return domain.ChainBalance{}, false, fmt.Errorf("redis get: %w", err)
	}

	if err := json.Unmarshal(data, &balance); err != nil {
		c.logger.Warn("dropping unreadable cached balance",
			zap.String("chain", string(chain)),
			zap.Error(err))
		_ = c.client.Del(ctx, balanceKey(chain)).Err()
		return domain.ChainBalance{}, false, nil
	}

	return balance, true, nil
}

// Set stores a complete balance. Degraded balances are skipped.
func (c *BalanceCache) Set(ctx context.Context, balance domain.ChainBalance) error {
	if balance.Degraded {
		return nil
	}

	data, err := json.Marshal(balance)
	if err != nil {
		return fmt.Errorf("marshal balance: %w", err)
	}

	if err := c.client.Set(ctx, balanceKey(balance.Chain), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Invalidate drops the cached balance of a chain, e.g. after a sweep
func (c *BalanceCache) Invalidate(ctx context.Context, chain domain.Chain) error {
	return c.client.Del(ctx, balanceKey(chain)).Err()
}

// TTL reports the remaining lifetime of a cached balance
func (c *BalanceCache) TTL(ctx context.Context, chain domain.Chain) (time.Duration, error) {
	return c.client.TTL(ctx, balanceKey(chain)).Result()
}

func (c *BalanceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *BalanceCache) Close() error {
	return c.client.Close()
}
