package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shop-ingest/internal/core/domain"
	"shop-ingest/internal/core/ports"
	"shop-ingest/internal/observability/metrics"
	"shop-ingest/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// BackfillOrchestrator implements ports.BackfillRunner. It drives one claimed
// job through running to completed or failed, resource by resource.
type BackfillOrchestrator struct {
	jobs    ports.JobRepository
	tenants ports.TenantRepository
	states  ports.BackfillStateRepository
	remote  ports.RemoteClient
	codec   ports.CredentialCodec
	writer  ports.RecordWriter
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// NewBackfillOrchestrator creates a new BackfillOrchestrator.
func NewBackfillOrchestrator(
	jobs ports.JobRepository,
	tenants ports.TenantRepository,
	states ports.BackfillStateRepository,
	remote ports.RemoteClient,
	codec ports.CredentialCodec,
	writer ports.RecordWriter,
	m *metrics.Metrics,
	log zerolog.Logger,
) *BackfillOrchestrator {
	return &BackfillOrchestrator{
		jobs:    jobs,
		tenants: tenants,
		states:  states,
		remote:  remote,
		codec:   codec,
		writer:  writer,
		metrics: m,
		log:     logger.Component(log, "backfill"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run executes the job. Progress committed for earlier resources survives a
// later failure; the failed resource resumes from its last watermark next time.
func (o *BackfillOrchestrator) Run(ctx context.Context, jobID uuid.UUID) error {
	job, err := o.jobs.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job == nil {
		return domain.ErrJobNotFound
	}

	log := o.log.With().
		Str("job_id", job.ID.String()).
		Str("tenant_id", job.TenantID.String()).
		Logger()
	// bookkeeping must land even if the run was cut short by shutdown
	bookCtx := context.WithoutCancel(ctx)

	started := o.now()
	if err := o.jobs.MarkRunning(ctx, job.ID, started); err != nil {
		runErr := fmt.Errorf("mark job running: %w", err)
		// someone else owns a job that is no longer claimed
		if errors.Is(err, domain.ErrInvalidTransition) {
			return runErr
		}
		// claimed -> failed, so the job never stays claimed
		if ferr := o.jobs.Fail(bookCtx, job.ID, runErr.Error(), o.now()); ferr != nil {
			log.Error().Err(ferr).Msg("Failed to mark job failed")
		}
		o.metrics.ObserveJobFinished(string(domain.JobStatusFailed), runErr, o.now().Sub(started))
		return runErr
	}
	log.Info().Msg("Backfill started")

	counts, runErr := o.run(ctx, log, job)
	if runErr != nil {
		o.fail(bookCtx, log, job, runErr)
		o.metrics.ObserveJobFinished(string(domain.JobStatusFailed), runErr, o.now().Sub(started))
		return runErr
	}

	if err := o.jobs.Complete(bookCtx, job.ID, counts, o.now()); err != nil {
		runErr = fmt.Errorf("complete job: %w", err)
		o.fail(bookCtx, log, job, runErr)
		o.metrics.ObserveJobFinished(string(domain.JobStatusFailed), runErr, o.now().Sub(started))
		return runErr
	}
	if err := o.states.MarkIdle(bookCtx, job.TenantID); err != nil {
		log.Warn().Err(err).Msg("Failed to reset watermark status")
	}
	o.metrics.ObserveJobFinished(string(domain.JobStatusCompleted), nil, o.now().Sub(started))

	log.Info().
		Int("products", counts.Products).
		Int("customers", counts.Customers).
		Int("orders", counts.Orders).
		Dur("duration", o.now().Sub(started)).
		Msg("Backfill completed")
	return nil
}

func (o *BackfillOrchestrator) run(ctx context.Context, log zerolog.Logger, job *domain.BackfillJob) (domain.ResourceCounts, error) {
	var counts domain.ResourceCounts

	tenant, err := o.tenants.GetByID(ctx, job.TenantID)
	if err != nil {
		return counts, fmt.Errorf("load tenant: %w", err)
	}
	if tenant == nil {
		return counts, domain.ErrTenantNotFound
	}

	o.progress(ctx, log, job.ID, "Fetching tenant access token")
	accessToken, err := o.accessToken(tenant)
	if err != nil {
		return counts, err
	}

	for _, resource := range domain.Resources() {
		n, err := o.backfillResource(ctx, log, job.ID, tenant, accessToken, resource)
		if err != nil {
			return counts, fmt.Errorf("%s: %w", resource, err)
		}
		counts.Set(resource, n)
	}
	return counts, nil
}

func (o *BackfillOrchestrator) accessToken(tenant *domain.Tenant) (string, error) {
	if !tenant.HasCredential() {
		return "", domain.ErrCredentialUnavailable
	}
	token, err := o.codec.Decode(*tenant.AccessTokenEnc)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCredentialUnavailable, err)
	}
	if token == "" {
		return "", domain.ErrCredentialUnavailable
	}
	return token, nil
}

// backfillResource fetches everything changed since the watermark, upserts it
// and advances the watermark to the newest record seen.
func (o *BackfillOrchestrator) backfillResource(
	ctx context.Context,
	log zerolog.Logger,
	jobID uuid.UUID,
	tenant *domain.Tenant,
	accessToken string,
	resource domain.Resource,
) (int, error) {
	state, err := o.states.Get(ctx, tenant.ID, resource)
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}
	since := state.Since()

	o.progress(ctx, log, jobID, fmt.Sprintf("Fetching %s", resource))
	items, err := o.remote.FetchSince(ctx, tenant.ShopDomain, accessToken, resource, since)
	if err != nil {
		return 0, err
	}

	var watermark *time.Time
	if since != nil {
		w := *since
		watermark = &w
	}
	for _, raw := range items {
		rec, err := o.writer.Write(ctx, resource, tenant.ID, raw)
		if err != nil {
			return 0, err
		}
		if ts := rec.Watermark(); ts != nil && (watermark == nil || ts.After(*watermark)) {
			t := *ts
			watermark = &t
		}
	}
	o.metrics.AddRecordsUpserted(string(resource), metrics.SourceBackfill, len(items))

	if len(items) > 0 && watermark != nil {
		if err := o.states.Advance(ctx, tenant.ID, resource, *watermark, o.now()); err != nil {
			return 0, fmt.Errorf("advance watermark: %w", err)
		}
	}

	log.Info().
		Str("resource", string(resource)).
		Int("count", len(items)).
		Msg("Resource backfilled")
	o.progress(ctx, log, jobID, fmt.Sprintf("Fetched %d %s", len(items), resource))
	return len(items), nil
}

// progress appends a human-readable line to the job; failures only get logged.
func (o *BackfillOrchestrator) progress(ctx context.Context, log zerolog.Logger, jobID uuid.UUID, message string) {
	if err := o.jobs.AppendMessage(ctx, jobID, message, o.now()); err != nil {
		log.Warn().Err(err).Str("message", message).Msg("Failed to record job progress")
	}
}

func (o *BackfillOrchestrator) fail(ctx context.Context, log zerolog.Logger, job *domain.BackfillJob, runErr error) {
	reason := runErr.Error()
	log.Error().Err(runErr).Msg("Backfill failed")

	if err := o.jobs.Fail(ctx, job.ID, reason, o.now()); err != nil {
		log.Error().Err(err).Msg("Failed to mark job failed")
	}
	if errors.Is(runErr, domain.ErrTenantNotFound) {
		return
	}
	for _, resource := range domain.Resources() {
		if err := o.states.MarkFailed(ctx, job.TenantID, resource, reason); err != nil {
			log.Warn().Err(err).Str("resource", string(resource)).Msg("Failed to mark watermark failed")
		}
	}
}
