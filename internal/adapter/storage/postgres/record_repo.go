package postgres

import (
	"context"
	"fmt"

	"shop-ingest/internal/core/domain"
)

// RecordRepo implements ports.RecordRepository. Every write is an
// INSERT ... ON CONFLICT DO UPDATE on (tenant_id, shop_*_id), so concurrent
// backfill and webhook writes of the same record resolve last-writer-wins.
type RecordRepo struct {
	pool Pool
}

// NewRecordRepo creates a new RecordRepo.
func NewRecordRepo(pool Pool) *RecordRepo {
	return &RecordRepo{pool: pool}
}

// UpsertProduct inserts or updates a product.
func (r *RecordRepo) UpsertProduct(ctx context.Context, p *domain.Product) error {
	query := `INSERT INTO products (tenant_id, shop_product_id, title, handle, vendor, product_type, status,
			data, shop_created_at, shop_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tenant_id, shop_product_id) DO UPDATE SET
			title = EXCLUDED.title,
			handle = EXCLUDED.handle,
			vendor = EXCLUDED.vendor,
			product_type = EXCLUDED.product_type,
			status = EXCLUDED.status,
			data = EXCLUDED.data,
			shop_created_at = EXCLUDED.shop_created_at,
			shop_updated_at = EXCLUDED.shop_updated_at,
			updated_at = now()`

	_, err := r.pool.Exec(ctx, query,
		p.TenantID, int64(p.RemoteID), p.Title, p.Handle, p.Vendor, p.ProductType, p.Status,
		p.Raw, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert product %s: %w", p.RemoteID, err)
	}
	return nil
}

// UpsertCustomer inserts or updates a customer.
func (r *RecordRepo) UpsertCustomer(ctx context.Context, c *domain.Customer) error {
	query := `INSERT INTO customers (tenant_id, shop_customer_id, email, first_name, last_name, orders_count,
			total_spent, data, shop_created_at, shop_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, '')::numeric, $8, $9, $10)
		ON CONFLICT (tenant_id, shop_customer_id) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			orders_count = EXCLUDED.orders_count,
			total_spent = EXCLUDED.total_spent,
			data = EXCLUDED.data,
			shop_created_at = EXCLUDED.shop_created_at,
			shop_updated_at = EXCLUDED.shop_updated_at,
			updated_at = now()`

	_, err := r.pool.Exec(ctx, query,
		c.TenantID, int64(c.RemoteID), c.Email, c.FirstName, c.LastName, c.OrdersCount,
		string(c.TotalSpent), c.Raw, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert customer %s: %w", c.RemoteID, err)
	}
	return nil
}

// UpsertOrder inserts or updates an order.
func (r *RecordRepo) UpsertOrder(ctx context.Context, o *domain.Order) error {
	query := `INSERT INTO orders (tenant_id, shop_order_id, name, email, currency, total_price,
			financial_status, fulfillment_status, shop_customer_id, data, processed_at, shop_created_at, shop_updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::numeric, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (tenant_id, shop_order_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			currency = EXCLUDED.currency,
			total_price = EXCLUDED.total_price,
			financial_status = EXCLUDED.financial_status,
			fulfillment_status = EXCLUDED.fulfillment_status,
			shop_customer_id = EXCLUDED.shop_customer_id,
			data = EXCLUDED.data,
			processed_at = EXCLUDED.processed_at,
			shop_created_at = EXCLUDED.shop_created_at,
			shop_updated_at = EXCLUDED.shop_updated_at,
			updated_at = now()`

	_, err := r.pool.Exec(ctx, query,
		o.TenantID, int64(o.RemoteID), o.Name, o.Email, o.Currency, string(o.TotalPrice),
		o.FinancialStatus, o.FulfillmentStatus, o.CustomerRemoteID(), o.Raw,
		o.ProcessedAt, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert order %s: %w", o.RemoteID, err)
	}
	return nil
}
