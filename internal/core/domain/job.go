package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a backfill job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusClaimed   JobStatus = "claimed"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusQueued:  {JobStatusClaimed},
	JobStatusClaimed: {JobStatusRunning, JobStatusFailed},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed},
}

// IsTerminal returns true if the status is final.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo reports whether moving from s to next keeps the lifecycle monotonic.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, allowed := range jobTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BackfillJob is one pull-based synchronization run for a tenant.
// JSON field names are part of the public job snapshot contract.
type BackfillJob struct {
	ID             uuid.UUID  `json:"id"`
	TenantID       uuid.UUID  `json:"tenantId"`
	Status         JobStatus  `json:"status"`
	CreatedAt      time.Time  `json:"createdAt"`
	ClaimedAt      *time.Time `json:"claimedAt,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	UpdatedAt      *time.Time `json:"updatedAt,omitempty"`
	Message        *string    `json:"message,omitempty"`
	Messages       []string   `json:"messages,omitempty"`
	Error          *string    `json:"error,omitempty"`
	ProductsCount  *int       `json:"productsCount,omitempty"`
	CustomersCount *int       `json:"customersCount,omitempty"`
	OrdersCount    *int       `json:"ordersCount,omitempty"`
}

// NewBackfillJob returns a queued job with a fresh id.
func NewBackfillJob(tenantID uuid.UUID, now time.Time) *BackfillJob {
	return &BackfillJob{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Status:    JobStatusQueued,
		CreatedAt: now,
	}
}

// ResourceCounts holds the number of records fetched per resource in one run.
type ResourceCounts struct {
	Products  int
	Customers int
	Orders    int
}

// Set records n for the given resource.
func (c *ResourceCounts) Set(r Resource, n int) {
	switch r {
	case ResourceProducts:
		c.Products = n
	case ResourceCustomers:
		c.Customers = n
	case ResourceOrders:
		c.Orders = n
	}
}
