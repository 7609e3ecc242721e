package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// dedupTTL keeps claim keys long enough to cover the provider's full retry
// window; the ledger's unique constraint remains the durable backstop.
const dedupTTL = 24 * time.Hour

// RedisDedupCache claims provider message IDs with SET NX so redelivered
// webhooks are dropped before touching the database.
type RedisDedupCache struct {
	client *redis.Client
}

func NewRedisDedupCache(addr string) (*RedisDedupCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("unable to ping redis: %w", err)
	}
	return &RedisDedupCache{client: client}, nil
}

// FirstSeen reports whether this call is the first to claim externalID.
func (c *RedisDedupCache) FirstSeen(ctx context.Context, externalID string) (bool, error) {
	ok, err := c.client.SetNX(ctx, "dedup:msg:"+externalID, 1, dedupTTL).Result()
	if err != nil {
		return false, fmt.Errorf("dedup claim: %w", err)
	}
	return ok, nil
}

func (c *RedisDedupCache) Close() error {
	return c.client.Close()
}
