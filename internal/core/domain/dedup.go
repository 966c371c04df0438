package domain

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// PayloadHash returns the lowercase hex SHA-256 of a raw webhook body.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// BuildDeliveryKey constructs the dedup key for a delivery id.
func BuildDeliveryKey(tenantID uuid.UUID, deliveryID string) string {
	return tenantID.String() + ":delivery:" + deliveryID
}

// BuildPayloadKey constructs the dedup key for a payload hash.
func BuildPayloadKey(tenantID uuid.UUID, payloadHash string) string {
	return tenantID.String() + ":payload:" + payloadHash
}
