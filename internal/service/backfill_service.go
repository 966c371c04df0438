package service

import (
	"context"
	"time"

	"shop-ingest/internal/core/domain"
	"shop-ingest/internal/core/ports"
	"shop-ingest/pkg/apperror"
	"shop-ingest/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// backfillService implements ports.BackfillService.
type backfillService struct {
	jobs     ports.JobRepository
	tenants  ports.TenantRepository
	states   ports.BackfillStateRepository
	notifier ports.JobNotifier
	log      zerolog.Logger
}

// NewBackfillService creates the backfill API service. notifier may be nil,
// in which case new jobs are found on the next poll.
func NewBackfillService(
	jobs ports.JobRepository,
	tenants ports.TenantRepository,
	states ports.BackfillStateRepository,
	notifier ports.JobNotifier,
	log zerolog.Logger,
) ports.BackfillService {
	return &backfillService{
		jobs:     jobs,
		tenants:  tenants,
		states:   states,
		notifier: notifier,
		log:      logger.Component(log, "backfill_api"),
	}
}

// Enqueue records a queued job and returns without running it.
func (s *backfillService) Enqueue(ctx context.Context, tenantID uuid.UUID) (*domain.BackfillJob, error) {
	if err := s.requireTenant(ctx, tenantID); err != nil {
		return nil, err
	}

	job := domain.NewBackfillJob(tenantID, time.Now().UTC())
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, job.ID); err != nil {
			s.log.Warn().Err(err).Str("job_id", job.ID.String()).Msg("Failed to notify poller, job waits for next poll")
		}
	}

	s.log.Info().
		Str("job_id", job.ID.String()).
		Str("tenant_id", tenantID.String()).
		Msg("Backfill job queued")
	return job, nil
}

func (s *backfillService) Status(ctx context.Context, jobID uuid.UUID) (*domain.BackfillJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if job == nil {
		return nil, apperror.ErrJobNotFound()
	}
	return job, nil
}

// States lists the tenant's watermarks. A tenant that was never backfilled has none.
func (s *backfillService) States(ctx context.Context, tenantID uuid.UUID) ([]domain.BackfillState, error) {
	states, err := s.states.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return states, nil
}

// ResetState clears one watermark so the next backfill refetches the resource in full.
func (s *backfillService) ResetState(ctx context.Context, tenantID uuid.UUID, resource domain.Resource) error {
	if _, err := domain.ParseResource(string(resource)); err != nil {
		return apperror.ErrInvalidResource(string(resource))
	}
	if err := s.requireTenant(ctx, tenantID); err != nil {
		return err
	}
	if err := s.states.Reset(ctx, tenantID, resource); err != nil {
		return apperror.ErrDatabaseError(err)
	}

	s.log.Info().
		Str("tenant_id", tenantID.String()).
		Str("resource", string(resource)).
		Msg("Watermark reset")
	return nil
}

func (s *backfillService) requireTenant(ctx context.Context, tenantID uuid.UUID) error {
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return apperror.ErrDatabaseError(err)
	}
	if tenant == nil {
		return apperror.ErrTenantNotFound()
	}
	return nil
}
