// internal/security/vault.go
package security

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Secret paths read at startup
const (
	SecretMasterMnemonic   = "crypto/master-mnemonic"
	SecretMasterPassphrase = "crypto/master-passphrase"
	// SecretMasterSeed is a hex BIP39 seed, read only when no mnemonic is stored
	SecretMasterSeed = "crypto/master-seed"
)

// ErrSecretNotFound is returned when a provider has no value for a path
var ErrSecretNotFound = errors.New("secret not found")

// SecretProvider is a read-only secret backend
type SecretProvider interface {
	GetSecret(ctx context.Context, path string) (string, error)
}

// ============================================================================
// ENV PROVIDER
// ============================================================================

// EnvSecretProvider maps "crypto/master-mnemonic" to $CRYPTO_MASTER_MNEMONIC
type EnvSecretProvider struct {
	lookup func(string) (string, bool)
}

func NewEnvSecretProvider() *EnvSecretProvider {
	return &EnvSecretProvider{lookup: os.LookupEnv}
}

func (p *EnvSecretProvider) GetSecret(ctx context.Context, path string) (string, error) {
	envKey := pathToEnvKey(path)

	value, ok := p.lookup(envKey)
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s (env: %s)", ErrSecretNotFound, path, envKey)
	}

	return value, nil
}

func pathToEnvKey(path string) string {
	key := strings.ToUpper(path)
	key = strings.ReplaceAll(key, "/", "_")
	key = strings.ReplaceAll(key, "-", "_")
	return key
}

// ============================================================================
// FILE PROVIDER
// ============================================================================

// FileSecretProvider keeps each secret in <baseDir>/<path>.enc, sealed with AES-256-GCM
type FileSecretProvider struct {
	baseDir    string
	encryption *Encryption
	mu         sync.RWMutex
}

func NewFileSecretProvider(baseDir, encryptionKey string) (*FileSecretProvider, error) {
	encryption, err := NewEncryption(encryptionKey)
	if err != nil {
		return nil, err
	}

	return &FileSecretProvider{
		baseDir:    baseDir,
		encryption: encryption,
	}, nil
}

func (p *FileSecretProvider) filePath(path string) string {
	return filepath.Join(p.baseDir, filepath.FromSlash(path)+".enc")
}

func (p *FileSecretProvider) GetSecret(ctx context.Context, path string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ciphertext, err := os.ReadFile(p.filePath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrSecretNotFound, path)
		}
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	plaintext, err := p.encryption.DecryptBytes(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret %s: %w", path, err)
	}

	return string(plaintext), nil
}

// PutSecret seals and writes a secret. Used by the seed generator only.
func (p *FileSecretProvider) PutSecret(ctx context.Context, path, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ciphertext, err := p.encryption.EncryptBytes([]byte(value))
	if err != nil {
		return fmt.Errorf("failed to encrypt secret: %w", err)
	}

	filePath := p.filePath(path)
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return fmt.Errorf("failed to create vault directory: %w", err)
	}

	if err := os.WriteFile(filePath, ciphertext, 0o600); err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}

	return nil
}
