package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop-ingest/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const stateColumns = `tenant_id, resource, cursor, last_backfill_at, last_success_at, status, notes`

// BackfillStateRepo implements ports.BackfillStateRepository.
type BackfillStateRepo struct {
	pool Pool
}

// NewBackfillStateRepo creates a new BackfillStateRepo.
func NewBackfillStateRepo(pool Pool) *BackfillStateRepo {
	return &BackfillStateRepo{pool: pool}
}

// Get fetches the watermark of one resource. Returns nil, nil if absent.
func (r *BackfillStateRepo) Get(ctx context.Context, tenantID uuid.UUID, resource domain.Resource) (*domain.BackfillState, error) {
	query := `SELECT ` + stateColumns + ` FROM backfill_states WHERE tenant_id = $1 AND resource = $2`

	s, err := scanState(r.pool.QueryRow(ctx, query, tenantID, resource))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get backfill state: %w", err)
	}
	return s, nil
}

// ListByTenant returns every watermark of the tenant in backfill order.
func (r *BackfillStateRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.BackfillState, error) {
	query := `SELECT ` + stateColumns + ` FROM backfill_states
		WHERE tenant_id = $1
		ORDER BY CASE resource WHEN 'products' THEN 0 WHEN 'customers' THEN 1 ELSE 2 END`

	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list backfill states: %w", err)
	}
	defer rows.Close()

	states := []domain.BackfillState{}
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backfill state: %w", err)
		}
		states = append(states, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backfill states: %w", err)
	}
	return states, nil
}

// Advance upserts the watermark as idle. GREATEST keeps last_success_at from
// ever moving backwards (and ignores the NULL of a fresh row).
func (r *BackfillStateRepo) Advance(ctx context.Context, tenantID uuid.UUID, resource domain.Resource, lastSuccessAt, at time.Time) error {
	query := `INSERT INTO backfill_states (tenant_id, resource, last_backfill_at, last_success_at, status, notes)
		VALUES ($1, $2, $3, $4, 'idle', NULL)
		ON CONFLICT (tenant_id, resource) DO UPDATE SET
			last_backfill_at = EXCLUDED.last_backfill_at,
			last_success_at = GREATEST(backfill_states.last_success_at, EXCLUDED.last_success_at),
			status = 'idle',
			notes = NULL`

	_, err := r.pool.Exec(ctx, query, tenantID, resource, at, lastSuccessAt)
	if err != nil {
		return fmt.Errorf("advance backfill state: %w", err)
	}
	return nil
}

// MarkIdle sets every existing watermark of the tenant to idle.
func (r *BackfillStateRepo) MarkIdle(ctx context.Context, tenantID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE backfill_states SET status = 'idle' WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return fmt.Errorf("mark backfill states idle: %w", err)
	}
	return nil
}

// MarkFailed upserts the watermark as failed. last_success_at is left untouched.
func (r *BackfillStateRepo) MarkFailed(ctx context.Context, tenantID uuid.UUID, resource domain.Resource, notes string) error {
	query := `INSERT INTO backfill_states (tenant_id, resource, status, notes)
		VALUES ($1, $2, 'failed', $3)
		ON CONFLICT (tenant_id, resource) DO UPDATE SET
			status = 'failed',
			notes = EXCLUDED.notes`

	_, err := r.pool.Exec(ctx, query, tenantID, resource, notes)
	if err != nil {
		return fmt.Errorf("mark backfill state failed: %w", err)
	}
	return nil
}

// Reset clears the watermark so the next run does a full fetch.
func (r *BackfillStateRepo) Reset(ctx context.Context, tenantID uuid.UUID, resource domain.Resource) error {
	query := `UPDATE backfill_states
		SET cursor = NULL, last_backfill_at = NULL, last_success_at = NULL, notes = NULL, status = 'idle'
		WHERE tenant_id = $1 AND resource = $2`

	_, err := r.pool.Exec(ctx, query, tenantID, resource)
	if err != nil {
		return fmt.Errorf("reset backfill state: %w", err)
	}
	return nil
}

func scanState(row pgx.Row) (*domain.BackfillState, error) {
	s := &domain.BackfillState{}
	err := row.Scan(&s.TenantID, &s.Resource, &s.Cursor, &s.LastBackfillAt, &s.LastSuccessAt, &s.Status, &s.Notes)
	if err != nil {
		return nil, err
	}
	return s, nil
}
