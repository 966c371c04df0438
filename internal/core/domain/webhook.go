package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// WebhookLogStatus represents the processing state of an inbound webhook.
type WebhookLogStatus string

const (
	WebhookLogProcessing WebhookLogStatus = "processing"
	WebhookLogOK         WebhookLogStatus = "ok"
	WebhookLogError      WebhookLogStatus = "error"
)

// WebhookLog is the dedup and audit ledger for inbound webhooks.
// Rows in status error never count as duplicates.
type WebhookLog struct {
	ID          uuid.UUID        `json:"id"`
	TenantID    *uuid.UUID       `json:"tenant_id,omitempty"`
	Topic       string           `json:"topic"`
	DeliveryID  *string          `json:"delivery_id,omitempty"`
	PayloadHash *string          `json:"payload_hash,omitempty"`
	Status      WebhookLogStatus `json:"status"`
	Reason      *string          `json:"reason,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// WebhookTopics are the topics registered with the remote platform for each tenant.
var WebhookTopics = []string{"products/create", "orders/create", "customers/create"}

// ResourceForTopic maps a topic such as "orders/updated" to its resource.
func ResourceForTopic(topic string) (Resource, error) {
	prefix, _, _ := strings.Cut(topic, "/")
	return ParseResource(prefix)
}
