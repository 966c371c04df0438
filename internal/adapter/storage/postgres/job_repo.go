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

const jobColumns = `id, tenant_id, status, created_at, claimed_at, started_at, updated_at,
	message, messages, error, products_count, customers_count, orders_count`

// CompletedMessage is the final progress message of a successful job.
const CompletedMessage = "Backfill completed"

// JobRepo implements ports.JobRepository.
type JobRepo struct {
	pool Pool
}

// NewJobRepo creates a new JobRepo.
func NewJobRepo(pool Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// Create inserts a new job.
func (r *JobRepo) Create(ctx context.Context, job *domain.BackfillJob) error {
	query := `INSERT INTO backfill_jobs (id, tenant_id, status, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := r.pool.Exec(ctx, query, job.ID, job.TenantID, job.Status, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert backfill job: %w", err)
	}
	return nil
}

// GetByID fetches a job snapshot. Returns nil, nil if absent.
func (r *JobRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.BackfillJob, error) {
	query := `SELECT ` + jobColumns + ` FROM backfill_jobs WHERE id = $1`

	job, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get backfill job: %w", err)
	}
	return job, nil
}

// ListQueued returns queued jobs in creation order.
func (r *JobRepo) ListQueued(ctx context.Context, limit int) ([]domain.BackfillJob, error) {
	query := `SELECT ` + jobColumns + ` FROM backfill_jobs
		WHERE status = 'queued'
		ORDER BY created_at ASC
		LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.BackfillJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queued job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queued jobs: %w", err)
	}
	return jobs, nil
}

// Claim moves a queued job to claimed in one statement, so two pollers can
// never both win. Returns nil, nil when the job was not queued anymore.
func (r *JobRepo) Claim(ctx context.Context, id uuid.UUID, at time.Time) (*domain.BackfillJob, error) {
	query := `UPDATE backfill_jobs
		SET status = 'claimed', claimed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'queued'
		RETURNING ` + jobColumns

	job, err := scanJob(r.pool.QueryRow(ctx, query, id, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim backfill job: %w", err)
	}
	return job, nil
}

// MarkRunning moves a claimed job to running and records the start time.
func (r *JobRepo) MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE backfill_jobs
		SET status = 'running', started_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'claimed'`

	return r.transition(ctx, "mark job running", query, id, at)
}

// AppendMessage records a progress message.
func (r *JobRepo) AppendMessage(ctx context.Context, id uuid.UUID, message string, at time.Time) error {
	query := `UPDATE backfill_jobs
		SET message = $2, messages = array_append(messages, $2), updated_at = $3
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, message, at)
	if err != nil {
		return fmt.Errorf("append job message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// Complete moves a running job to completed with its final counts.
func (r *JobRepo) Complete(ctx context.Context, id uuid.UUID, counts domain.ResourceCounts, at time.Time) error {
	query := `UPDATE backfill_jobs
		SET status = 'completed', message = $2, messages = array_append(messages, $2),
			products_count = $3, customers_count = $4, orders_count = $5, updated_at = $6
		WHERE id = $1 AND status = 'running'`

	return r.transition(ctx, "complete job", query,
		id, CompletedMessage, counts.Products, counts.Customers, counts.Orders, at)
}

// Fail moves a claimed or running job to failed.
func (r *JobRepo) Fail(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	query := `UPDATE backfill_jobs
		SET status = 'failed', error = $2, message = $2, updated_at = $3
		WHERE id = $1 AND status IN ('claimed', 'running')`

	return r.transition(ctx, "fail job", query, id, reason, at)
}

func (r *JobRepo) transition(ctx context.Context, op, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrInvalidTransition)
	}
	return nil
}

func scanJob(row pgx.Row) (*domain.BackfillJob, error) {
	job := &domain.BackfillJob{}
	err := row.Scan(
		&job.ID, &job.TenantID, &job.Status, &job.CreatedAt,
		&job.ClaimedAt, &job.StartedAt, &job.UpdatedAt,
		&job.Message, &job.Messages, &job.Error,
		&job.ProductsCount, &job.CustomersCount, &job.OrdersCount,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}
