package dto

// TenantQuery selects a tenant via ?tenantId= on the backfill endpoints.
type TenantQuery struct {
	TenantID string `form:"tenantId" binding:"required,uuid"`
}

// ResetStateRequest is the request body for POST /ingest/backfill/state/reset.
type ResetStateRequest struct {
	TenantID string `json:"tenantId" binding:"required,uuid"`
	Resource string `json:"resource" binding:"required,resource"`
}

// WebhookQuery lets a webhook name its tenant when the shop-domain header is absent.
type WebhookQuery struct {
	TenantID string `form:"tenantId" binding:"omitempty,uuid"`
}

// EnqueueResponse is the response body for a queued backfill.
type EnqueueResponse struct {
	OK    bool   `json:"ok"`
	JobID string `json:"jobId"`
}

// OKResponse acknowledges a request. Note is set for duplicate webhooks.
type OKResponse struct {
	OK   bool   `json:"ok"`
	Note string `json:"note,omitempty"`
}

// HealthResponse is the payload of GET /health.
type HealthResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]DependencyStatus `json:"dependencies"`
}

type DependencyStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// WebhookHeaders are the platform headers sent with every webhook delivery.
type WebhookHeaders struct {
	Signature  string `header:"X-Shopify-Hmac-Sha256"`
	ShopDomain string `header:"X-Shopify-Shop-Domain" binding:"omitempty,shop_domain"`
	WebhookID  string `header:"X-Shopify-Webhook-Id" binding:"max=255"`
	DeliveryID string `header:"X-Shopify-Delivery-Id" binding:"max=255"`
	Topic      string `header:"X-Shopify-Topic" binding:"max=255"`
}

// DeliveryKey prefers the webhook id and falls back to the delivery id.
func (h WebhookHeaders) DeliveryKey() string {
	if h.WebhookID != "" {
		return h.WebhookID
	}
	return h.DeliveryID
}

// RegisterWebhooksRequest is the optional body of POST /ingest/tenants/:id/webhooks.
// An empty BaseURL falls back to the configured public URL.
type RegisterWebhooksRequest struct {
	BaseURL string `json:"baseUrl" binding:"omitempty,safe_url"`
}

// RegisterWebhooksResponse lists the topics registered for the tenant.
type RegisterWebhooksResponse struct {
	OK     bool     `json:"ok"`
	Topics []string `json:"topics"`
}
