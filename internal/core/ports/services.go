package ports

import (
	"context"
	"encoding/json"
	"time"

	"shop-ingest/internal/core/domain"

	"github.com/google/uuid"
)

// RemoteClient talks to the commerce platform's Admin API.
type RemoteClient interface {
	// FetchSince pages through a resource, returning every raw record in receipt
	// order. A nil since fetches everything.
	FetchSince(ctx context.Context, shopDomain, accessToken string, resource domain.Resource, since *time.Time) ([]json.RawMessage, error)
	// RegisterWebhooks subscribes the shop to the ingestion topics and returns
	// the topics that are now registered.
	RegisterWebhooks(ctx context.Context, shopDomain, accessToken, baseURL string) ([]string, error)
}

// CredentialCodec turns a stored access credential into a usable token.
type CredentialCodec interface {
	Encode(plaintext string) (string, error)
	Decode(encoded string) (string, error)
}

// WebhookSigner computes and checks base64 HMAC-SHA256 webhook signatures.
type WebhookSigner interface {
	Sign(secret string, body []byte) string
	Verify(secret string, body []byte, signature string) bool
}

// DeliveryCache is the Redis-layer webhook dedup check (fast path).
type DeliveryCache interface {
	// Seen reports whether any of the keys has been remembered.
	Seen(ctx context.Context, keys ...string) (bool, error)
	Remember(ctx context.Context, ttl time.Duration, keys ...string) error
}

// JobNotifier wakes the poller when a job is enqueued.
type JobNotifier interface {
	Notify(ctx context.Context, jobID uuid.UUID) error
	// Wait blocks until a notification arrives or timeout elapses.
	// Returns true if a notification was received.
	Wait(ctx context.Context, timeout time.Duration) (bool, error)
}

// TokenService handles operator JWTs for the backfill API.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	Subject string
}

// --- Service Ports (Business Logic) ---

// RecordWriter decodes one raw record and upserts it by (tenant, remote id).
type RecordWriter interface {
	Write(ctx context.Context, resource domain.Resource, tenantID uuid.UUID, raw []byte) (domain.Record, error)
}

// BackfillRunner executes a claimed job to completion.
type BackfillRunner interface {
	Run(ctx context.Context, jobID uuid.UUID) error
}

// BackfillService is the backfill API surface.
type BackfillService interface {
	Enqueue(ctx context.Context, tenantID uuid.UUID) (*domain.BackfillJob, error)
	Status(ctx context.Context, jobID uuid.UUID) (*domain.BackfillJob, error)
	States(ctx context.Context, tenantID uuid.UUID) ([]domain.BackfillState, error)
	ResetState(ctx context.Context, tenantID uuid.UUID, resource domain.Resource) error
}

// WebhookIngestor applies one push-based change event.
type WebhookIngestor interface {
	Ingest(ctx context.Context, req WebhookRequest) (*WebhookOutcome, error)
}

// WebhookRequest is one inbound webhook call.
type WebhookRequest struct {
	Topic      string
	Resource   domain.Resource
	ShopDomain string
	TenantID   *uuid.UUID // Used when no shop domain header is sent
	Signature  string
	DeliveryID string
	Body       []byte
}

// WebhookOutcome is the result of a successfully handled webhook.
type WebhookOutcome struct {
	TenantID  uuid.UUID
	RemoteID  domain.RemoteID
	Duplicate bool
}

// TenantService holds operator actions on existing tenants.
type TenantService interface {
	RegisterWebhooks(ctx context.Context, tenantID uuid.UUID, baseURL string) ([]string, error)
}
