package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHMACWebhookSigner_SignAndVerify(t *testing.T) {
	svc := NewHMACWebhookSigner()
	secret := "shpss_secret"
	body := []byte(`{"id":820982911946154508,"title":"Example T-Shirt"}`)

	signature := svc.Sign(secret, body)

	// 32-byte digest in padded base64
	assert.Regexp(t, `^[A-Za-z0-9+/]{43}=$`, signature)
	assert.True(t, svc.Verify(secret, body, signature))
}

func TestHMACWebhookSigner_KnownVector(t *testing.T) {
	svc := NewHMACWebhookSigner()

	// RFC 4231 test case 2
	assert.Equal(t, "W9zBRr9gdU5qBCQmCJV1x1oAPwidJzmDnexYuWTsOEM=", svc.Sign("Jefe", []byte("what do ya want for nothing?")))
}

func TestHMACWebhookSigner_VerifyFails_WrongSecret(t *testing.T) {
	svc := NewHMACWebhookSigner()
	body := []byte("payload")

	signature := svc.Sign("correct-secret", body)
	assert.False(t, svc.Verify("wrong-secret", body, signature))
}

func TestHMACWebhookSigner_VerifyFails_TamperedBody(t *testing.T) {
	svc := NewHMACWebhookSigner()

	signature := svc.Sign("secret", []byte(`{"id":1}`))
	assert.False(t, svc.Verify("secret", []byte(`{"id": 1}`), signature))
}

func TestHMACWebhookSigner_VerifyFails_Empty(t *testing.T) {
	svc := NewHMACWebhookSigner()

	assert.False(t, svc.Verify("secret", []byte("x"), ""))
	assert.False(t, svc.Verify("", []byte("x"), svc.Sign("", []byte("x"))))
	assert.False(t, svc.Verify("secret", []byte("x"), "not-a-signature"))
}
