package postgres

import (
	"context"
	"fmt"
	"time"

	"shop-ingest/internal/core/domain"

	"github.com/google/uuid"
)

// WebhookLogRepo implements ports.WebhookLogRepository. Uniqueness of delivery
// ids and payload hashes among non-error rows is enforced by partial unique
// indexes, see migrations/000001_init.up.sql.
type WebhookLogRepo struct {
	pool Pool
}

// NewWebhookLogRepo creates a new WebhookLogRepo.
func NewWebhookLogRepo(pool Pool) *WebhookLogRepo {
	return &WebhookLogRepo{pool: pool}
}

// Exists reports whether a non-error entry matches either key.
func (r *WebhookLogRepo) Exists(ctx context.Context, tenantID uuid.UUID, deliveryID, payloadHash *string) (bool, error) {
	if deliveryID == nil && payloadHash == nil {
		return false, nil
	}
	query := `SELECT EXISTS (
		SELECT 1 FROM webhook_logs
		WHERE tenant_id = $1 AND status <> 'error'
			AND (delivery_id = $2 OR payload_hash = $3)
	)`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, tenantID, deliveryID, payloadHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("check webhook log: %w", err)
	}
	return exists, nil
}

// Claim inserts a processing entry. A conflicting non-error entry makes it a no-op.
func (r *WebhookLogRepo) Claim(ctx context.Context, log *domain.WebhookLog) (bool, error) {
	query := `INSERT INTO webhook_logs (id, tenant_id, topic, delivery_id, payload_hash, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING`

	tag, err := r.pool.Exec(ctx, query,
		log.ID, log.TenantID, log.Topic, log.DeliveryID, log.PayloadHash,
		log.Status, log.Reason, log.CreatedAt, log.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("claim webhook log: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus finalizes an entry. Moving it to error releases its dedup keys.
func (r *WebhookLogRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.WebhookLogStatus, reason *string) error {
	query := `UPDATE webhook_logs SET status = $1, reason = $2, updated_at = $3 WHERE id = $4`

	_, err := r.pool.Exec(ctx, query, status, reason, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update webhook log: %w", err)
	}
	return nil
}

// CreateFailure records a rejected or failed webhook without dedup keys.
func (r *WebhookLogRepo) CreateFailure(ctx context.Context, log *domain.WebhookLog) error {
	query := `INSERT INTO webhook_logs (id, tenant_id, topic, delivery_id, payload_hash, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, NULL, NULL, 'error', $4, $5, $5)`

	_, err := r.pool.Exec(ctx, query, log.ID, log.TenantID, log.Topic, log.Reason, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert webhook failure: %w", err)
	}
	return nil
}
