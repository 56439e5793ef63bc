package security

import (
	"context"
	"encoding/hex"
	"sync"
	"testing"

	"crypto-collector/internal/domain"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tyler-smith/go-bip39"
	"go.uber.org/zap/zaptest"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestNewSeedAuthority_Errors(t *testing.T) {
	tests := []struct {
		name     string
		mnemonic string
		wantErr  error
	}{
		{"empty", "", domain.ErrSeedMissing},
		{"whitespace", "   \n\t", domain.ErrSeedMissing},
		{"bad checksum", "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon", domain.ErrSeedInvalid},
		{"unknown word", "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon zzzz", domain.ErrSeedInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authority, err := NewSeedAuthority(tt.mnemonic, "")
			assert.Nil(t, authority)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewSeedAuthority_NormalisesWhitespace(t *testing.T) {
	a, err := NewSeedAuthority(testMnemonic, "")
	require.NoError(t, err)

	b, err := NewSeedAuthority("  abandon abandon abandon abandon abandon abandon\nabandon abandon abandon abandon abandon   about ", "")
	require.NoError(t, err)

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
}

func TestNewSeedAuthority_PassphraseChangesSeed(t *testing.T) {
	a, err := NewSeedAuthority(testMnemonic, "")
	require.NoError(t, err)

	b, err := NewSeedAuthority(testMnemonic, "TREZOR")
	require.NoError(t, err)

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestNewSeedAuthorityFromHex_MatchesMnemonic(t *testing.T) {
	seed := bip39.NewSeed(testMnemonic, "")

	fromMnemonic, err := NewSeedAuthority(testMnemonic, "")
	require.NoError(t, err)

	fromHex, err := NewSeedAuthorityFromHex(hex.EncodeToString(seed))
	require.NoError(t, err)

	assert.Equal(t, fromMnemonic.Fingerprint(), fromHex.Fingerprint())
	assert.Len(t, fromHex.Fingerprint(), 8)
}

func TestNewSeedAuthorityFromSeed_Length(t *testing.T) {
	_, err := NewSeedAuthorityFromSeed(nil)
	assert.ErrorIs(t, err, domain.ErrSeedMissing)

	_, err = NewSeedAuthorityFromSeed(make([]byte, 8))
	assert.ErrorIs(t, err, domain.ErrSeedInvalid)

	_, err = NewSeedAuthorityFromSeed(make([]byte, 65))
	assert.ErrorIs(t, err, domain.ErrSeedInvalid)

	_, err = NewSeedAuthorityFromHex("not-hex")
	assert.ErrorIs(t, err, domain.ErrSeedInvalid)
}

func TestLoadSeedAuthority(t *testing.T) {
	logger := zaptest.NewLogger(t)

	t.Run("missing mnemonic", func(t *testing.T) {
		provider := &EnvSecretProvider{lookup: func(string) (string, bool) { return "", false }}
		_, err := LoadSeedAuthority(context.Background(), provider, logger)
		assert.ErrorIs(t, err, domain.ErrSeedMissing)
	})

	t.Run("mnemonic without passphrase", func(t *testing.T) {
		provider := &EnvSecretProvider{lookup: func(key string) (string, bool) {
			if key == "CRYPTO_MASTER_MNEMONIC" {
				return testMnemonic, true
			}
			return "", false
		}}

		authority, err := LoadSeedAuthority(context.Background(), provider, logger)
		require.NoError(t, err)

		expected, err := NewSeedAuthority(testMnemonic, "")
		require.NoError(t, err)
		assert.Equal(t, expected.Fingerprint(), authority.Fingerprint())
	})

	t.Run("hex seed fallback", func(t *testing.T) {
		expected, err := NewSeedAuthority(testMnemonic, "")
		require.NoError(t, err)
		seedHex := hex.EncodeToString(bip39.NewSeed(testMnemonic, ""))

		provider := &EnvSecretProvider{lookup: func(key string) (string, bool) {
			if key == "CRYPTO_MASTER_SEED" {
				return seedHex + "\n", true
			}
			return "", false
		}}

		authority, err := LoadSeedAuthority(context.Background(), provider, logger)
		require.NoError(t, err)
		assert.Equal(t, expected.Fingerprint(), authority.Fingerprint())
	})

	t.Run("invalid mnemonic", func(t *testing.T) {
		provider := &EnvSecretProvider{lookup: func(key string) (string, bool) {
			return "not a mnemonic", true
		}}
		_, err := LoadSeedAuthority(context.Background(), provider, logger)
		assert.ErrorIs(t, err, domain.ErrSeedInvalid)
	})
}

func TestSecp256k1Branch_ConcurrentDerivation(t *testing.T) {
	authority, err := NewSeedAuthority(testMnemonic, "")
	require.NoError(t, err)

	branch, err := authority.Secp256k1Branch(
		hdkeychain.HardenedKeyStart+44,
		hdkeychain.HardenedKeyStart+0,
		hdkeychain.HardenedKeyStart+0,
		0,
	)
	require.NoError(t, err)

	want, err := branch.Derive(7)
	require.NoError(t, err)
	wantPub, err := want.ECPubKey()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			child, err := branch.Derive(7)
			if !assert.NoError(t, err) {
				return
			}
			pub, err := child.ECPubKey()
			if assert.NoError(t, err) {
				assert.Equal(t, wantPub.SerializeCompressed(), pub.SerializeCompressed())
			}
		}()
	}
	wg.Wait()
}

func TestGenerateMnemonic(t *testing.T) {
	mnemonic, err := GenerateMnemonic()
	require.NoError(t, err)

	assert.True(t, bip39.IsMnemonicValid(mnemonic))

	_, err = NewSeedAuthority(mnemonic, "")
	assert.NoError(t, err)
}
