package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Resource is a remote collection that can be backfilled.
type Resource string

const (
	ResourceProducts  Resource = "products"
	ResourceCustomers Resource = "customers"
	ResourceOrders    Resource = "orders"
)

// Resources returns every resource in backfill order.
func Resources() []Resource {
	return []Resource{ResourceProducts, ResourceCustomers, ResourceOrders}
}

// ParseResource validates a resource name.
func ParseResource(s string) (Resource, error) {
	switch r := Resource(s); r {
	case ResourceProducts, ResourceCustomers, ResourceOrders:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResource, s)
}

// StateStatus is the health of a resource watermark.
type StateStatus string

const (
	StateStatusIdle   StateStatus = "idle"
	StateStatusFailed StateStatus = "failed"
)

// BackfillState is the watermark of one (tenant, resource) pair.
// LastSuccessAt only moves forward; it is the lower bound of the next incremental fetch.
type BackfillState struct {
	TenantID       uuid.UUID   `json:"tenantId"`
	Resource       Resource    `json:"resource"`
	Cursor         *string     `json:"cursor"`
	LastBackfillAt *time.Time  `json:"lastBackfillAt"`
	LastSuccessAt  *time.Time  `json:"lastSuccessAt"`
	Status         StateStatus `json:"status"`
	Notes          *string     `json:"notes"`
}

// Since returns the incremental fetch bound, nil for a full fetch.
func (s *BackfillState) Since() *time.Time {
	if s == nil {
		return nil
	}
	return s.LastSuccessAt
}
