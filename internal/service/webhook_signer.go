package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
)

// HMACWebhookSigner implements ports.WebhookSigner using HMAC-SHA256 with
// base64 output, the format carried in X-Shopify-Hmac-Sha256.
type HMACWebhookSigner struct{}

// NewHMACWebhookSigner creates a new webhook signer.
func NewHMACWebhookSigner() *HMACWebhookSigner {
	return &HMACWebhookSigner{}
}

// Sign computes base64(HMAC-SHA256(secret, body)) over the raw body bytes.
func (s *HMACWebhookSigner) Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks signature in constant time. An empty secret or signature never verifies.
func (s *HMACWebhookSigner) Verify(secret string, body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}
	expected := s.Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
