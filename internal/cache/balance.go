package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/traP-jp/sisyphus/internal/ledger"
)

const balanceKey = "sisyphus:project"

// BalanceCache keeps the last project snapshot in Redis so the balance
// page does not hit the ledger on every load. A nil cache is a no-op;
// the service runs without Redis, just slower.
type BalanceCache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl}
}

// Get returns the cached project, or (nil, nil) on a miss.
func (c *BalanceCache) Get(ctx context.Context) (*ledger.Project, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	val, err := c.client.Get(ctx, balanceKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cached project: %w", err)
	}

	var project ledger.Project
	if err := json.Unmarshal([]byte(val), &project); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached project: %w", err)
	}
	return &project, nil
}

// Set stores the project snapshot with the configured TTL.
func (c *BalanceCache) Set(ctx context.Context, project *ledger.Project) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(project)
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	return c.client.Set(ctx, balanceKey, payload, c.ttl).Err()
}

// Invalidate drops the snapshot after a mutating operation succeeds.
func (c *BalanceCache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, balanceKey).Err()
}
