package service_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"shop-ingest/internal/core/domain"

	"github.com/google/uuid"
)

// In-memory stores used by the end-to-end tests. They mirror the guarded
// transitions and upsert semantics of the postgres repositories.

type memTenants struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*domain.Tenant
}

func newMemTenants(tenants ...*domain.Tenant) *memTenants {
	r := &memTenants{tenants: make(map[uuid.UUID]*domain.Tenant)}
	for _, t := range tenants {
		r.tenants[t.ID] = t
	}
	return r
}

func (r *memTenants) GetByID(_ context.Context, id uuid.UUID) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTenants) GetByShopDomain(_ context.Context, shopDomain string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		if t.ShopDomain == shopDomain {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

type memJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.BackfillJob
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: make(map[uuid.UUID]*domain.BackfillJob)}
}

func (r *memJobs) Create(_ context.Context, job *domain.BackfillJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memJobs) GetByID(_ context.Context, id uuid.UUID) (*domain.BackfillJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, nil
	}
	return cloneJob(job), nil
}

func (r *memJobs) ListQueued(_ context.Context, limit int) ([]domain.BackfillJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var queued []domain.BackfillJob
	for _, job := range r.jobs {
		if job.Status == domain.JobStatusQueued {
			queued = append(queued, *cloneJob(job))
		}
	}
	sort.Slice(queued, func(i, j int) bool { return queued[i].CreatedAt.Before(queued[j].CreatedAt) })
	if len(queued) > limit {
		queued = queued[:limit]
	}
	return queued, nil
}

func (r *memJobs) Claim(_ context.Context, id uuid.UUID, at time.Time) (*domain.BackfillJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || job.Status != domain.JobStatusQueued {
		return nil, nil
	}
	job.Status = domain.JobStatusClaimed
	job.ClaimedAt = &at
	job.UpdatedAt = &at
	return cloneJob(job), nil
}

func (r *memJobs) MarkRunning(_ context.Context, id uuid.UUID, at time.Time) error {
	return r.transition(id, "mark job running", []domain.JobStatus{domain.JobStatusClaimed}, func(job *domain.BackfillJob) {
		job.Status = domain.JobStatusRunning
		job.StartedAt = &at
		job.UpdatedAt = &at
	})
}

func (r *memJobs) AppendMessage(_ context.Context, id uuid.UUID, message string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	job.Message = &message
	job.Messages = append(job.Messages, message)
	job.UpdatedAt = &at
	return nil
}

func (r *memJobs) Complete(_ context.Context, id uuid.UUID, counts domain.ResourceCounts, at time.Time) error {
	return r.transition(id, "complete job", []domain.JobStatus{domain.JobStatusRunning}, func(job *domain.BackfillJob) {
		msg := "Backfill completed"
		job.Status = domain.JobStatusCompleted
		job.Message = &msg
		job.Messages = append(job.Messages, msg)
		job.ProductsCount = &counts.Products
		job.CustomersCount = &counts.Customers
		job.OrdersCount = &counts.Orders
		job.UpdatedAt = &at
	})
}

func (r *memJobs) Fail(_ context.Context, id uuid.UUID, reason string, at time.Time) error {
	return r.transition(id, "fail job", []domain.JobStatus{domain.JobStatusClaimed, domain.JobStatusRunning}, func(job *domain.BackfillJob) {
		job.Status = domain.JobStatusFailed
		job.Error = &reason
		job.Message = &reason
		job.UpdatedAt = &at
	})
}

func (r *memJobs) transition(id uuid.UUID, op string, from []domain.JobStatus, apply func(*domain.BackfillJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if ok {
		for _, s := range from {
			if job.Status == s {
				apply(job)
				return nil
			}
		}
	}
	return fmt.Errorf("%s: %w", op, domain.ErrInvalidTransition)
}

func cloneJob(job *domain.BackfillJob) *domain.BackfillJob {
	cp := *job
	cp.Messages = append([]string(nil), job.Messages...)
	return &cp
}

type stateKey struct {
	tenantID uuid.UUID
	resource domain.Resource
}

type memStates struct {
	mu     sync.Mutex
	states map[stateKey]*domain.BackfillState
}

func newMemStates() *memStates {
	return &memStates{states: make(map[stateKey]*domain.BackfillState)}
}

func (r *memStates) Get(_ context.Context, tenantID uuid.UUID, resource domain.Resource) (*domain.BackfillState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[stateKey{tenantID, resource}]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *memStates) ListByTenant(_ context.Context, tenantID uuid.UUID) ([]domain.BackfillState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.BackfillState
	for _, res := range domain.Resources() {
		if s, ok := r.states[stateKey{tenantID, res}]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *memStates) Advance(_ context.Context, tenantID uuid.UUID, resource domain.Resource, lastSuccessAt, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.upsert(tenantID, resource)
	s.LastBackfillAt = &at
	if s.LastSuccessAt == nil || lastSuccessAt.After(*s.LastSuccessAt) {
		s.LastSuccessAt = &lastSuccessAt
	}
	s.Status = domain.StateStatusIdle
	s.Notes = nil
	return nil
}

func (r *memStates) MarkIdle(_ context.Context, tenantID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, s := range r.states {
		if k.tenantID == tenantID {
			s.Status = domain.StateStatusIdle
		}
	}
	return nil
}

func (r *memStates) MarkFailed(_ context.Context, tenantID uuid.UUID, resource domain.Resource, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.upsert(tenantID, resource)
	s.Status = domain.StateStatusFailed
	s.Notes = &notes
	return nil
}

func (r *memStates) Reset(_ context.Context, tenantID uuid.UUID, resource domain.Resource) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.states[stateKey{tenantID, resource}]; ok {
		*s = domain.BackfillState{TenantID: tenantID, Resource: resource, Status: domain.StateStatusIdle}
	}
	return nil
}

func (r *memStates) upsert(tenantID uuid.UUID, resource domain.Resource) *domain.BackfillState {
	k := stateKey{tenantID, resource}
	s, ok := r.states[k]
	if !ok {
		s = &domain.BackfillState{TenantID: tenantID, Resource: resource, Status: domain.StateStatusIdle}
		r.states[k] = s
	}
	return s
}

type recordKey struct {
	tenantID uuid.UUID
	resource domain.Resource
	remoteID domain.RemoteID
}

// memRecords keeps the last written raw payload per record and counts writes.
type memRecords struct {
	mu      sync.Mutex
	records map[recordKey][]byte
	writes  int
}

func newMemRecords() *memRecords {
	return &memRecords{records: make(map[recordKey][]byte)}
}

func (r *memRecords) UpsertProduct(_ context.Context, p *domain.Product) error {
	r.put(recordKey{p.TenantID, domain.ResourceProducts, p.RemoteID}, p.Raw)
	return nil
}

func (r *memRecords) UpsertCustomer(_ context.Context, c *domain.Customer) error {
	r.put(recordKey{c.TenantID, domain.ResourceCustomers, c.RemoteID}, c.Raw)
	return nil
}

func (r *memRecords) UpsertOrder(_ context.Context, o *domain.Order) error {
	r.put(recordKey{o.TenantID, domain.ResourceOrders, o.RemoteID}, o.Raw)
	return nil
}

func (r *memRecords) put(k recordKey, raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[k] = raw
	r.writes++
}

func (r *memRecords) count(tenantID uuid.UUID, resource domain.Resource) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for k := range r.records {
		if k.tenantID == tenantID && k.resource == resource {
			n++
		}
	}
	return n
}

func (r *memRecords) writeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writes
}

type memWebhookLogs struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*domain.WebhookLog
}

func newMemWebhookLogs() *memWebhookLogs {
	return &memWebhookLogs{logs: make(map[uuid.UUID]*domain.WebhookLog)}
}

func (r *memWebhookLogs) Exists(_ context.Context, tenantID uuid.UUID, deliveryID, payloadHash *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.matchLocked(tenantID, deliveryID, payloadHash), nil
}

func (r *memWebhookLogs) Claim(_ context.Context, log *domain.WebhookLog) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if log.TenantID != nil && r.matchLocked(*log.TenantID, log.DeliveryID, log.PayloadHash) {
		return false, nil
	}
	cp := *log
	r.logs[log.ID] = &cp
	return true, nil
}

func (r *memWebhookLogs) UpdateStatus(_ context.Context, id uuid.UUID, status domain.WebhookLogStatus, reason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.logs[id]; ok {
		l.Status = status
		l.Reason = reason
		l.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (r *memWebhookLogs) CreateFailure(_ context.Context, log *domain.WebhookLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *log
	r.logs[log.ID] = &cp
	return nil
}

func (r *memWebhookLogs) countStatus(status domain.WebhookLogStatus) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.logs {
		if l.Status == status {
			n++
		}
	}
	return n
}

// matchLocked ignores error rows, like the partial unique indexes.
func (r *memWebhookLogs) matchLocked(tenantID uuid.UUID, deliveryID, payloadHash *string) bool {
	for _, l := range r.logs {
		if l.Status == domain.WebhookLogError || l.TenantID == nil || *l.TenantID != tenantID {
			continue
		}
		if deliveryID != nil && l.DeliveryID != nil && *l.DeliveryID == *deliveryID {
			return true
		}
		if payloadHash != nil && l.PayloadHash != nil && *l.PayloadHash == *payloadHash {
			return true
		}
	}
	return false
}
