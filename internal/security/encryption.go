// internal/security/encryption.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Encryption seals secrets at rest with AES-256-GCM.
// Ciphertexts carry their nonce as a prefix.
type Encryption struct {
	aead cipher.AEAD
}

// NewEncryption accepts a base64 encoded or raw 32-byte key
func NewEncryption(key string) (*Encryption, error) {
	keyBytes := []byte(key)
	if decoded, err := base64.StdEncoding.DecodeString(key); err == nil {
		keyBytes = decoded
	}

	if len(keyBytes) != 32 {
		return nil, fmt.Errorf("invalid vault key length: must be 32 bytes for AES-256, got %d", len(keyBytes))
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryption{aead: aead}, nil
}

// EncryptBytes returns nonce || ciphertext
func (e *Encryption) EncryptBytes(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("data cannot be empty")
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return e.aead.Seal(nonce, nonce, data, nil), nil
}

// DecryptBytes reverses EncryptBytes
func (e *Encryption) DecryptBytes(ciphertext []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(ciphertext) <= nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	return plaintext, nil
}

// GenerateVaultKey returns a random base64 encoded AES-256 key
func GenerateVaultKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
