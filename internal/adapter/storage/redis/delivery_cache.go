package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DeliveryCache implements ports.DeliveryCache using Redis. It is only a fast
// path in front of the webhook_logs table; losing it never breaks dedup.
type DeliveryCache struct {
	client goredis.Cmdable
	prefix string
}

// NewDeliveryCache creates a new Redis-backed webhook dedup cache.
func NewDeliveryCache(client goredis.Cmdable) *DeliveryCache {
	return &DeliveryCache{
		client: client,
		prefix: "webhook:seen:",
	}
}

// Seen reports whether any of the keys has been remembered.
func (c *DeliveryCache) Seen(ctx context.Context, keys ...string) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	n, err := c.client.Exists(ctx, c.prefixed(keys)...).Result()
	if err != nil {
		return false, fmt.Errorf("redis delivery exists: %w", err)
	}
	return n > 0, nil
}

// Remember stores every key with ttl. Existing keys keep their original expiry.
func (c *DeliveryCache) Remember(ctx context.Context, ttl time.Duration, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := c.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, key := range c.prefixed(keys) {
			pipe.SetArgs(ctx, key, 1, goredis.SetArgs{Mode: "NX", TTL: ttl})
		}
		return nil
	})
	// SET NX on an existing key replies nil, which is not a failure here
	if err != nil && !errors.Is(err, goredis.Nil) {
		return fmt.Errorf("redis delivery remember: %w", err)
	}
	return nil
}

func (c *DeliveryCache) prefixed(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = c.prefix + k
	}
	return out
}
