package security

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathToEnvKey(t *testing.T) {
	assert.Equal(t, "CRYPTO_MASTER_MNEMONIC", pathToEnvKey(SecretMasterMnemonic))
	assert.Equal(t, "CRYPTO_MASTER_PASSPHRASE", pathToEnvKey(SecretMasterPassphrase))
}

func TestEnvSecretProvider(t *testing.T) {
	t.Setenv("CRYPTO_MASTER_MNEMONIC", testMnemonic)
	t.Setenv("CRYPTO_MASTER_PASSPHRASE", "  ")

	provider := NewEnvSecretProvider()

	value, err := provider.GetSecret(context.Background(), SecretMasterMnemonic)
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, value)

	_, err = provider.GetSecret(context.Background(), SecretMasterPassphrase)
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestFileSecretProvider_RoundTrip(t *testing.T) {
	key, err := GenerateVaultKey()
	require.NoError(t, err)

	dir := t.TempDir()
	provider, err := NewFileSecretProvider(dir, key)
	require.NoError(t, err)

	ctx := context.Background()

	_, err = provider.GetSecret(ctx, SecretMasterMnemonic)
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, provider.PutSecret(ctx, SecretMasterMnemonic, testMnemonic))

	raw, err := os.ReadFile(filepath.Join(dir, "crypto", "master-mnemonic.enc"))
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "abandon")

	value, err := provider.GetSecret(ctx, SecretMasterMnemonic)
	require.NoError(t, err)
	assert.Equal(t, testMnemonic, value)

	// A different key cannot open the file
	otherKey, err := GenerateVaultKey()
	require.NoError(t, err)
	other, err := NewFileSecretProvider(dir, otherKey)
	require.NoError(t, err)

	_, err = other.GetSecret(ctx, SecretMasterMnemonic)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrSecretNotFound)
}

func TestEncryption(t *testing.T) {
	_, err := NewEncryption("short")
	assert.Error(t, err)

	enc, err := NewEncryption("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	sealed, err := enc.EncryptBytes([]byte("secret"))
	require.NoError(t, err)

	again, err := enc.EncryptBytes([]byte("secret"))
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "nonce must differ per call")

	plain, err := enc.DecryptBytes(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret", string(plain))

	sealed[len(sealed)-1] ^= 0xff
	_, err = enc.DecryptBytes(sealed)
	assert.Error(t, err)

	_, err = enc.DecryptBytes([]byte("x"))
	assert.Error(t, err)

	_, err = enc.EncryptBytes(nil)
	assert.Error(t, err)
}
