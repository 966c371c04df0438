package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is a connected shop. Every other entity is owned by a tenant id.
type Tenant struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	ShopDomain     string    `json:"shop_domain"`
	AccessTokenEnc *string   `json:"-"` // Encoded by the credential codec, never expose
	APISecret      *string   `json:"-"` // Per-tenant webhook signing secret
	CreatedAt      time.Time `json:"created_at"`
}

// WebhookSecret returns the tenant's signing secret, or fallback when none is configured.
func (t *Tenant) WebhookSecret(fallback string) string {
	if t != nil && t.APISecret != nil && *t.APISecret != "" {
		return *t.APISecret
	}
	return fallback
}

// HasCredential reports whether an encoded access token is stored.
func (t *Tenant) HasCredential() bool {
	return t.AccessTokenEnc != nil && *t.AccessTokenEnc != ""
}
