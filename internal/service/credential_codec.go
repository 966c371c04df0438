package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

const gcmTagSize = 16

// AESCredentialCodec implements ports.CredentialCodec using AES-256-GCM.
// Encoded credentials have the form base64(iv):base64(ciphertext):base64(tag).
// Values without a separator are legacy plaintext tokens and decode as-is.
type AESCredentialCodec struct {
	key []byte // 32-byte key for AES-256
}

// NewAESCredentialCodec creates a codec from a base64-encoded 32-byte key.
func NewAESCredentialCodec(b64Key string) (*AESCredentialCodec, error) {
	key, err := base64.StdEncoding.DecodeString(b64Key)
	if err != nil {
		return nil, fmt.Errorf("decoding credential key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("credential key must be 32 bytes, got %d", len(key))
	}
	return &AESCredentialCodec{key: key}, nil
}

// Encode encrypts plaintext with a random 12-byte IV.
func (c *AESCredentialCodec) Encode(plaintext string) (string, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	iv := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("generating iv: %w", err)
	}

	sealed := aesGCM.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(iv),
		base64.StdEncoding.EncodeToString(ciphertext),
		base64.StdEncoding.EncodeToString(tag),
	}, ":"), nil
}

// Decode reverses Encode. The IV length is taken from the stored value so
// tokens written with 16-byte IVs still open.
func (c *AESCredentialCodec) Decode(encoded string) (string, error) {
	if !strings.Contains(encoded, ":") {
		return encoded, nil
	}

	parts := strings.Split(encoded, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed credential: expected 3 parts, got %d", len(parts))
	}
	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("decoding iv: %w", err)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("decoding tag: %w", err)
	}
	if len(iv) == 0 || len(tag) != gcmTagSize {
		return "", fmt.Errorf("malformed credential: iv %d bytes, tag %d bytes", len(iv), len(tag))
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("creating cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return "", fmt.Errorf("creating GCM: %w", err)
	}

	plaintext, err := aesGCM.Open(nil, iv, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}

	return string(plaintext), nil
}

// PlaintextCredentialCodec stores credentials unencrypted.
// Used when credentials.encryption_enabled is false.
type PlaintextCredentialCodec struct{}

func (PlaintextCredentialCodec) Encode(plaintext string) (string, error) { return plaintext, nil }

func (PlaintextCredentialCodec) Decode(encoded string) (string, error) { return encoded, nil }
