package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// JobNotifier implements ports.JobNotifier over a Redis list so an API
// process can wake a worker running elsewhere. Notifications are hints:
// the worker still discovers jobs by polling the jobs table.
type JobNotifier struct {
	client goredis.Cmdable
	key    string
}

// NewJobNotifier creates a notifier using the given list key.
func NewJobNotifier(client goredis.Cmdable, key string) *JobNotifier {
	return &JobNotifier{client: client, key: key}
}

// Notify pushes the job id onto the list.
func (n *JobNotifier) Notify(ctx context.Context, jobID uuid.UUID) error {
	if err := n.client.LPush(ctx, n.key, jobID.String()).Err(); err != nil {
		return fmt.Errorf("redis notify job: %w", err)
	}
	return nil
}

// Wait blocks until a notification arrives or timeout elapses.
// It reports whether a notification was consumed.
func (n *JobNotifier) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	_, err := n.client.BRPop(ctx, timeout, n.key).Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, fmt.Errorf("redis wait job: %w", err)
	}
	return true, nil
}
