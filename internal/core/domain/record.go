package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// RemoteID is the platform's 64-bit record id. It is decoded from the exact
// JSON literal so large ids never pass through float64.
type RemoteID int64

func (id *RemoteID) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(bytes.TrimSpace(b), `"`)
	if len(b) == 0 || string(b) == "null" {
		return ErrMissingRemoteID
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return fmt.Errorf("parse remote id %q: %w", b, err)
	}
	*id = RemoteID(v)
	return nil
}

func (id RemoteID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Money is a decimal amount kept as its textual representation.
// The platform sends amounts as strings, but numbers are accepted too.
type Money string

func (m *Money) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if string(b) == "null" {
		*m = ""
		return nil
	}
	*m = Money(bytes.Trim(b, `"`))
	return nil
}

// Record is a decoded domain record of any resource.
type Record interface {
	Key() RemoteID
	// Watermark is the timestamp that advances the resource watermark:
	// updated, falling back to created.
	Watermark() *time.Time
}

type Product struct {
	TenantID    uuid.UUID       `json:"-"`
	RemoteID    RemoteID        `json:"id"`
	Title       string          `json:"title"`
	Handle      string          `json:"handle"`
	Vendor      string          `json:"vendor"`
	ProductType string          `json:"product_type"`
	Status      string          `json:"status"`
	CreatedAt   *time.Time      `json:"created_at"`
	UpdatedAt   *time.Time      `json:"updated_at"`
	Raw         json.RawMessage `json:"-"`
}

func (p *Product) Key() RemoteID { return p.RemoteID }

func (p *Product) Watermark() *time.Time { return firstSet(p.UpdatedAt, p.CreatedAt) }

type Customer struct {
	TenantID    uuid.UUID       `json:"-"`
	RemoteID    RemoteID        `json:"id"`
	Email       *string         `json:"email"`
	FirstName   *string         `json:"first_name"`
	LastName    *string         `json:"last_name"`
	OrdersCount int             `json:"orders_count"`
	TotalSpent  Money           `json:"total_spent"`
	CreatedAt   *time.Time      `json:"created_at"`
	UpdatedAt   *time.Time      `json:"updated_at"`
	Raw         json.RawMessage `json:"-"`
}

func (c *Customer) Key() RemoteID { return c.RemoteID }

func (c *Customer) Watermark() *time.Time { return firstSet(c.UpdatedAt, c.CreatedAt) }

type Order struct {
	TenantID          uuid.UUID       `json:"-"`
	RemoteID          RemoteID        `json:"id"`
	Name              string          `json:"name"`
	Email             *string         `json:"email"`
	Currency          string          `json:"currency"`
	TotalPrice        Money           `json:"total_price"`
	FinancialStatus   *string         `json:"financial_status"`
	FulfillmentStatus *string         `json:"fulfillment_status"`
	Customer          *OrderCustomer  `json:"customer"`
	ProcessedAt       *time.Time      `json:"processed_at"`
	CreatedAt         *time.Time      `json:"created_at"`
	UpdatedAt         *time.Time      `json:"updated_at"`
	Raw               json.RawMessage `json:"-"`
}

// OrderCustomer is the customer reference embedded in an order payload.
type OrderCustomer struct {
	RemoteID RemoteID `json:"id"`
}

func (o *Order) Key() RemoteID { return o.RemoteID }

func (o *Order) Watermark() *time.Time { return firstSet(o.UpdatedAt, o.CreatedAt, o.ProcessedAt) }

// CustomerRemoteID returns the embedded customer id, if any.
func (o *Order) CustomerRemoteID() *int64 {
	if o.Customer == nil {
		return nil
	}
	id := int64(o.Customer.RemoteID)
	return &id
}

// DecodeRecord decodes one raw platform record of the given resource.
func DecodeRecord(resource Resource, tenantID uuid.UUID, raw []byte) (Record, error) {
	var rec Record
	switch resource {
	case ResourceProducts:
		rec = &Product{TenantID: tenantID, Raw: raw}
	case ResourceCustomers:
		rec = &Customer{TenantID: tenantID, Raw: raw}
	case ResourceOrders:
		rec = &Order{TenantID: tenantID, Raw: raw}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	err := json.Unmarshal(raw, rec)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", resource, err)
	}
	if rec.Key() == 0 {
		return nil, fmt.Errorf("decode %s: %w", resource, ErrMissingRemoteID)
	}
	return rec, nil
}

// firstSet returns the first non-nil timestamp.
func firstSet(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil {
			return t
		}
	}
	return nil
}
