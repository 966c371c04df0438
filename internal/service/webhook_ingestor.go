package service

import (
	"context"
	"fmt"
	"time"

	"shop-ingest/internal/core/domain"
	"shop-ingest/internal/core/ports"
	"shop-ingest/internal/observability/metrics"
	"shop-ingest/pkg/apperror"
	"shop-ingest/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WebhookOptions configures signature checks and dedup.
type WebhookOptions struct {
	// GlobalSecret signs webhooks of tenants without their own API secret.
	GlobalSecret    string
	BypassSignature bool
	// DedupByPayloadHash also treats byte-identical bodies as the same delivery.
	DedupByPayloadHash bool
	DedupTTL           time.Duration
}

// webhookIngestor implements ports.WebhookIngestor.
type webhookIngestor struct {
	tenants ports.TenantRepository
	logs    ports.WebhookLogRepository
	cache   ports.DeliveryCache
	signer  ports.WebhookSigner
	writer  ports.RecordWriter
	opts    WebhookOptions
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewWebhookIngestor creates the webhook ingestor. cache may be nil, in which
// case only the webhook_logs ledger is consulted.
func NewWebhookIngestor(
	tenants ports.TenantRepository,
	logs ports.WebhookLogRepository,
	cache ports.DeliveryCache,
	signer ports.WebhookSigner,
	writer ports.RecordWriter,
	opts WebhookOptions,
	m *metrics.Metrics,
	log zerolog.Logger,
) ports.WebhookIngestor {
	return &webhookIngestor{
		tenants: tenants,
		logs:    logs,
		cache:   cache,
		signer:  signer,
		writer:  writer,
		opts:    opts,
		metrics: m,
		log:     logger.Component(log, "webhooks"),
	}
}

// Ingest verifies, de-duplicates and applies one webhook.
//
// Order matters: the tenant is resolved first only to pick the signing secret,
// the signature is checked before the tenant's absence is reported, and the
// dedup ledger row is claimed before the record is written.
func (s *webhookIngestor) Ingest(ctx context.Context, req ports.WebhookRequest) (*ports.WebhookOutcome, error) {
	if req.Topic == "" {
		req.Topic = string(req.Resource)
	}
	log := s.log.With().
		Str("resource", string(req.Resource)).
		Str("topic", req.Topic).
		Str("shop", req.ShopDomain).
		Str("delivery_id", req.DeliveryID).
		Logger()

	tenant, err := s.resolveTenant(ctx, req)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	if !s.opts.BypassSignature {
		if req.Signature == "" {
			return nil, s.reject(ctx, log, req, tenant, apperror.ErrMissingSignature())
		}
		if !s.signer.Verify(tenant.WebhookSecret(s.opts.GlobalSecret), req.Body, req.Signature) {
			return nil, s.reject(ctx, log, req, tenant, apperror.ErrInvalidSignature())
		}
	}
	if tenant == nil {
		return nil, s.reject(ctx, log, req, nil, apperror.ErrTenantNotFound())
	}
	log = log.With().Str("tenant_id", tenant.ID.String()).Logger()

	if _, err := domain.DecodeRecord(req.Resource, tenant.ID, req.Body); err != nil {
		return nil, s.reject(ctx, log, req, tenant, apperror.ErrInvalidPayload(err))
	}

	deliveryID, payloadHash := s.dedupKeys(req)
	cacheKeys := cacheKeysFor(tenant.ID, deliveryID, payloadHash)
	duplicate := &ports.WebhookOutcome{TenantID: tenant.ID, Duplicate: true}

	if s.seen(ctx, log, cacheKeys) {
		return s.duplicate(log, req, duplicate), nil
	}
	exists, err := s.logs.Exists(ctx, tenant.ID, deliveryID, payloadHash)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if exists {
		s.remember(ctx, log, cacheKeys)
		return s.duplicate(log, req, duplicate), nil
	}

	now := time.Now().UTC()
	entry := &domain.WebhookLog{
		ID:          uuid.New(),
		TenantID:    &tenant.ID,
		Topic:       req.Topic,
		DeliveryID:  deliveryID,
		PayloadHash: payloadHash,
		Status:      domain.WebhookLogProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	claimed, err := s.logs.Claim(ctx, entry)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if !claimed {
		// a concurrent delivery of the same event won the insert
		return s.duplicate(log, req, duplicate), nil
	}

	rec, err := s.writer.Write(ctx, req.Resource, tenant.ID, req.Body)
	if err != nil {
		reason := err.Error()
		// release the claim so a redelivery can retry
		if uerr := s.logs.UpdateStatus(context.WithoutCancel(ctx), entry.ID, domain.WebhookLogError, &reason); uerr != nil {
			log.Error().Err(uerr).Msg("Failed to release webhook claim")
		}
		s.metrics.IncWebhook(string(req.Resource), metrics.OutcomeError)
		log.Error().Err(err).Msg("Webhook upsert failed")
		return nil, apperror.InternalError(fmt.Errorf("apply webhook: %w", err))
	}

	if err := s.logs.UpdateStatus(ctx, entry.ID, domain.WebhookLogOK, nil); err != nil {
		// the row stays processing, which still blocks duplicates
		log.Warn().Err(err).Msg("Failed to mark webhook ok")
	}
	s.remember(ctx, log, cacheKeys)

	s.metrics.IncWebhook(string(req.Resource), metrics.OutcomeOK)
	s.metrics.AddRecordsUpserted(string(req.Resource), metrics.SourceWebhook, 1)
	log.Info().Str("remote_id", rec.Key().String()).Msg("Webhook applied")

	return &ports.WebhookOutcome{TenantID: tenant.ID, RemoteID: rec.Key()}, nil
}

// resolveTenant prefers the shop domain header over the tenantId query.
// An unknown tenant is not an error here.
func (s *webhookIngestor) resolveTenant(ctx context.Context, req ports.WebhookRequest) (*domain.Tenant, error) {
	switch {
	case req.ShopDomain != "":
		return s.tenants.GetByShopDomain(ctx, req.ShopDomain)
	case req.TenantID != nil:
		return s.tenants.GetByID(ctx, *req.TenantID)
	default:
		return nil, nil
	}
}

func (s *webhookIngestor) dedupKeys(req ports.WebhookRequest) (deliveryID, payloadHash *string) {
	if req.DeliveryID != "" {
		id := req.DeliveryID
		deliveryID = &id
	}
	if s.opts.DedupByPayloadHash {
		h := domain.PayloadHash(req.Body)
		payloadHash = &h
	}
	return deliveryID, payloadHash
}

func cacheKeysFor(tenantID uuid.UUID, deliveryID, payloadHash *string) []string {
	keys := make([]string, 0, 2)
	if deliveryID != nil {
		keys = append(keys, domain.BuildDeliveryKey(tenantID, *deliveryID))
	}
	if payloadHash != nil {
		keys = append(keys, domain.BuildPayloadKey(tenantID, *payloadHash))
	}
	return keys
}

func (s *webhookIngestor) seen(ctx context.Context, log zerolog.Logger, keys []string) bool {
	if s.cache == nil || len(keys) == 0 {
		return false
	}
	seen, err := s.cache.Seen(ctx, keys...)
	if err != nil {
		log.Warn().Err(err).Msg("Redis dedup check failed, falling through to DB")
		return false
	}
	return seen
}

func (s *webhookIngestor) remember(ctx context.Context, log zerolog.Logger, keys []string) {
	if s.cache == nil || len(keys) == 0 {
		return
	}
	if err := s.cache.Remember(ctx, s.opts.DedupTTL, keys...); err != nil {
		log.Warn().Err(err).Msg("Failed to cache webhook dedup keys")
	}
}

func (s *webhookIngestor) duplicate(log zerolog.Logger, req ports.WebhookRequest, out *ports.WebhookOutcome) *ports.WebhookOutcome {
	s.metrics.IncWebhook(string(req.Resource), metrics.OutcomeDuplicate)
	log.Info().Msg("Duplicate webhook ignored")
	return out
}

// reject writes a best-effort error row without dedup keys, so a rejected
// delivery never blocks a later valid one.
func (s *webhookIngestor) reject(ctx context.Context, log zerolog.Logger, req ports.WebhookRequest, tenant *domain.Tenant, appErr *apperror.AppError) error {
	reason := appErr.Message
	if appErr.Err != nil {
		reason = fmt.Sprintf("%s: %v", appErr.Message, appErr.Err)
	}
	entry := &domain.WebhookLog{
		ID:     uuid.New(),
		Topic:  req.Topic,
		Status: domain.WebhookLogError,
		Reason: &reason,
	}
	if tenant != nil {
		entry.TenantID = &tenant.ID
	}
	entry.CreatedAt = time.Now().UTC()
	entry.UpdatedAt = entry.CreatedAt

	if err := s.logs.CreateFailure(context.WithoutCancel(ctx), entry); err != nil {
		log.Warn().Err(err).Msg("Failed to record rejected webhook")
	}
	s.metrics.IncWebhook(string(req.Resource), metrics.OutcomeRejected)
	log.Warn().Str("reason", reason).Msg("Webhook rejected")
	return appErr
}
