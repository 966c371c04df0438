package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const healthProbeKey = "ingest:health:probe"

// HealthCheck implements ports.HealthChecker for Redis. It writes a
// short-lived probe key, so a read-only node reports unhealthy: the
// delivery cache and the job notifier both need writes.
type HealthCheck struct {
	client goredis.Cmdable
	now    func() time.Time
}

func NewHealthCheck(client goredis.Cmdable) *HealthCheck {
	return &HealthCheck{client: client, now: time.Now}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	if err := h.client.Set(ctx, healthProbeKey, h.now().Unix(), 10*time.Second).Err(); err != nil {
		return fmt.Errorf("redis probe: %w", err)
	}
	return nil
}

func (h *HealthCheck) Name() string {
	return "redis"
}
