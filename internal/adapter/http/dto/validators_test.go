package dto

import (
	"testing"

	"github.com/gin-gonic/gin/binding"
	"github.com/stretchr/testify/assert"
)

// --- SanitizeStruct tests ---

func TestSanitizeStruct_TrimsWhitespace(t *testing.T) {
	req := ResetStateRequest{
		TenantID: "  550e8400-e29b-41d4-a716-446655440000  ",
		Resource: " orders ",
	}
	SanitizeStruct(&req)

	assert.Equal(t, "550e8400-e29b-41d4-a716-446655440000", req.TenantID)
	assert.Equal(t, "orders", req.Resource)
}

func TestSanitizeStruct_EscapesHTML(t *testing.T) {
	req := ResetStateRequest{Resource: "<script>alert('x')</script>"}
	SanitizeStruct(&req)

	assert.Contains(t, req.Resource, "&lt;script&gt;")
	assert.NotContains(t, req.Resource, "<script>")
}

func TestSanitizeStruct_HandlesPointerString(t *testing.T) {
	type withPointer struct {
		Note *string
		Nil  *string
	}
	note := "  hello  "
	req := withPointer{Note: &note}
	SanitizeStruct(&req)

	assert.Equal(t, "hello", *req.Note)
	assert.Nil(t, req.Nil)
}

func TestSanitizeStruct_NonPointerIsNoOp(t *testing.T) {
	s := "hello"
	SanitizeStruct(s) // should not panic
}

// --- Custom Validator tests ---

func TestResourceValidator(t *testing.T) {
	tenant := "550e8400-e29b-41d4-a716-446655440000"

	for _, r := range []string{"products", "customers", "orders"} {
		err := binding.Validator.ValidateStruct(&ResetStateRequest{TenantID: tenant, Resource: r})
		assert.NoError(t, err, r)
	}

	for _, r := range []string{"inventory", "Orders", "orders ", ""} {
		err := binding.Validator.ValidateStruct(&ResetStateRequest{TenantID: tenant, Resource: r})
		assert.Error(t, err, "expected invalid: %q", r)
	}
}

func TestResetStateRequest_RequiresUUID(t *testing.T) {
	err := binding.Validator.ValidateStruct(&ResetStateRequest{TenantID: "tenant-1", Resource: "orders"})
	assert.Error(t, err)
}

func TestValidShopDomain(t *testing.T) {
	valid := []string{"acme.myshopify.com", "shop-1.example.io"}
	for _, tc := range valid {
		assert.True(t, ValidShopDomain(tc), "expected valid: %s", tc)
	}

	invalid := []string{
		"",
		"localhost",
		"Acme.myshopify.com",
		"acme.myshopify.com/admin",
		"acme .myshopify.com",
		"-acme.myshopify.com",
	}
	for _, tc := range invalid {
		assert.False(t, ValidShopDomain(tc), "expected invalid: %q", tc)
	}
}

func TestShopDomainValidator_OptionalWhenEmpty(t *testing.T) {
	type req struct {
		Shop string `binding:"shop_domain"`
	}
	assert.NoError(t, binding.Validator.ValidateStruct(&req{}))
	assert.NoError(t, binding.Validator.ValidateStruct(&req{Shop: "acme.myshopify.com"}))
	assert.Error(t, binding.Validator.ValidateStruct(&req{Shop: "not a domain"}))
}

func TestSafeURLValidator(t *testing.T) {
	valid := []string{"", "https://ingest.example.com", "http://localhost:8080/base"}
	for _, tc := range valid {
		assert.NoError(t, binding.Validator.ValidateStruct(&RegisterWebhooksRequest{BaseURL: tc}), tc)
	}

	invalid := []string{"ftp://example.com", "example.com", "javascript:alert(1)", "https://"}
	for _, tc := range invalid {
		assert.Error(t, binding.Validator.ValidateStruct(&RegisterWebhooksRequest{BaseURL: tc}), tc)
	}
}

func TestWebhookHeaders_DeliveryKey(t *testing.T) {
	assert.Equal(t, "w-1", WebhookHeaders{WebhookID: "w-1", DeliveryID: "d-1"}.DeliveryKey())
	assert.Equal(t, "d-1", WebhookHeaders{DeliveryID: "d-1"}.DeliveryKey())
	assert.Empty(t, WebhookHeaders{}.DeliveryKey())
}
