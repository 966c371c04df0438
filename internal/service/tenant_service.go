package service

import (
	"context"
	"errors"
	"strings"

	"shop-ingest/internal/core/domain"
	"shop-ingest/internal/core/ports"
	"shop-ingest/pkg/apperror"
	"shop-ingest/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type tenantService struct {
	tenants ports.TenantRepository
	codec   ports.CredentialCodec
	remote  ports.RemoteClient
	log     zerolog.Logger
}

// NewTenantService creates the operator service for existing tenants.
func NewTenantService(
	tenants ports.TenantRepository,
	codec ports.CredentialCodec,
	remote ports.RemoteClient,
	log zerolog.Logger,
) ports.TenantService {
	return &tenantService{
		tenants: tenants,
		codec:   codec,
		remote:  remote,
		log:     logger.Component(log, "tenants"),
	}
}

// RegisterWebhooks subscribes the tenant's shop to the ingestion topics at baseURL.
// Topics registered before a failure are returned alongside the error.
func (s *tenantService) RegisterWebhooks(ctx context.Context, tenantID uuid.UUID, baseURL string) ([]string, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, apperror.Validation("base URL is required")
	}

	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if tenant == nil {
		return nil, apperror.ErrTenantNotFound()
	}
	if !tenant.HasCredential() {
		return nil, apperror.ErrCredentialFailure(domain.ErrCredentialUnavailable)
	}

	accessToken, err := s.codec.Decode(*tenant.AccessTokenEnc)
	if err != nil {
		return nil, apperror.ErrCredentialFailure(err)
	}

	registered, err := s.remote.RegisterWebhooks(ctx, tenant.ShopDomain, accessToken, baseURL)
	log := s.log.With().
		Str("tenant_id", tenant.ID.String()).
		Str("shop", tenant.ShopDomain).
		Strs("topics", registered).
		Logger()
	if err != nil {
		log.Warn().Err(err).Msg("Webhook registration incomplete")
		var remoteErr *domain.RemoteFetchError
		if errors.As(err, &remoteErr) {
			return registered, apperror.ErrRemoteFailure(err)
		}
		return registered, apperror.InternalError(err)
	}

	log.Info().Msg("Webhooks registered")
	return registered, nil
}
