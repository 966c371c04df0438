package ports

import (
	"context"
	"time"

	"shop-ingest/internal/core/domain"

	"github.com/google/uuid"
)

// TenantRepository reads tenants. Tenant CRUD lives outside this service.
type TenantRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	GetByShopDomain(ctx context.Context, shopDomain string) (*domain.Tenant, error)
}

// JobRepository persists backfill jobs. Status updates are guarded in storage so
// a job never moves backwards; a guarded update that matches nothing returns
// domain.ErrInvalidTransition.
type JobRepository interface {
	Create(ctx context.Context, job *domain.BackfillJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.BackfillJob, error)
	ListQueued(ctx context.Context, limit int) ([]domain.BackfillJob, error)
	// Claim moves a queued job to claimed in a single compare-and-swap.
	// Returns nil, nil when the job is no longer queued.
	Claim(ctx context.Context, id uuid.UUID, at time.Time) (*domain.BackfillJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID, at time.Time) error
	AppendMessage(ctx context.Context, id uuid.UUID, message string, at time.Time) error
	Complete(ctx context.Context, id uuid.UUID, counts domain.ResourceCounts, at time.Time) error
	Fail(ctx context.Context, id uuid.UUID, reason string, at time.Time) error
}

// BackfillStateRepository persists per-resource watermarks.
type BackfillStateRepository interface {
	Get(ctx context.Context, tenantID uuid.UUID, resource domain.Resource) (*domain.BackfillState, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.BackfillState, error)
	// Advance upserts the watermark as idle. lastSuccessAt never moves backwards.
	Advance(ctx context.Context, tenantID uuid.UUID, resource domain.Resource, lastSuccessAt, at time.Time) error
	// MarkIdle sets every existing watermark row of the tenant to idle.
	MarkIdle(ctx context.Context, tenantID uuid.UUID) error
	// MarkFailed upserts the watermark as failed, leaving lastSuccessAt untouched.
	MarkFailed(ctx context.Context, tenantID uuid.UUID, resource domain.Resource, notes string) error
	Reset(ctx context.Context, tenantID uuid.UUID, resource domain.Resource) error
}

// RecordRepository upserts domain records keyed by (tenant, remote id).
type RecordRepository interface {
	UpsertProduct(ctx context.Context, p *domain.Product) error
	UpsertCustomer(ctx context.Context, c *domain.Customer) error
	UpsertOrder(ctx context.Context, o *domain.Order) error
}

// WebhookLogRepository is the persistent dedup ledger for inbound webhooks.
type WebhookLogRepository interface {
	// Exists reports whether a non-error entry of the tenant matches the
	// delivery id or the payload hash. Nil keys are not compared.
	Exists(ctx context.Context, tenantID uuid.UUID, deliveryID, payloadHash *string) (bool, error)
	// Claim inserts a processing entry. Returns false if a non-error entry
	// already holds the same delivery id or payload hash.
	Claim(ctx context.Context, log *domain.WebhookLog) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.WebhookLogStatus, reason *string) error
	// CreateFailure inserts an error entry without dedup keys.
	CreateFailure(ctx context.Context, log *domain.WebhookLog) error
}
