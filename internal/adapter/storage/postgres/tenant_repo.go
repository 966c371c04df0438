package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"shop-ingest/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const tenantColumns = `id, name, shop_domain, access_token_enc, api_secret, created_at`

// TenantRepo implements ports.TenantRepository.
type TenantRepo struct {
	pool Pool
}

// NewTenantRepo creates a new TenantRepo.
func NewTenantRepo(pool Pool) *TenantRepo {
	return &TenantRepo{pool: pool}
}

// GetByID fetches a tenant by its UUID.
func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`

	t, err := scanTenant(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get tenant by id: %w", err)
	}
	return t, nil
}

// GetByShopDomain fetches a tenant by its shop domain, case-insensitively.
func (r *TenantRepo) GetByShopDomain(ctx context.Context, shopDomain string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE lower(shop_domain) = $1`

	t, err := scanTenant(r.pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(shopDomain))))
	if err != nil {
		return nil, fmt.Errorf("get tenant by shop domain: %w", err)
	}
	return t, nil
}

// scanTenant returns nil, nil when no row matched.
func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	err := row.Scan(&t.ID, &t.Name, &t.ShopDomain, &t.AccessTokenEnc, &t.APISecret, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}
