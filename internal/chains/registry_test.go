package chains

import (
	"testing"

	"crypto-collector/internal/chains/bitcoin"
	"crypto-collector/internal/chains/ethereum"
	"crypto-collector/internal/chains/solana"
	"crypto-collector/internal/domain"
	"crypto-collector/internal/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	seed, err := security.NewSeedAuthority(
		"abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about", "")
	require.NoError(t, err)

	registry := NewRegistry()

	_, err = registry.Get(domain.ChainBitcoin)
	assert.ErrorIs(t, err, domain.ErrUnsupportedChain)

	ltc, err := bitcoin.NewDeriver(domain.ChainLitecoin, seed, &bitcoin.LitecoinMainNetParams)
	require.NoError(t, err)
	btcParams, err := bitcoin.NetworkParams(domain.ChainBitcoin, "mainnet")
	require.NoError(t, err)
	btc, err := bitcoin.NewDeriver(domain.ChainBitcoin, seed, btcParams)
	require.NoError(t, err)
	eth, err := ethereum.NewDeriver(seed)
	require.NoError(t, err)

	registry.Register(solana.NewDeriver(seed))
	registry.Register(eth)
	registry.Register(ltc)
	registry.Register(btc)

	assert.Equal(t, domain.AllChains, registry.List())

	account, err := registry.Derive(domain.ChainBitcoin, 0)
	require.NoError(t, err)
	assert.Equal(t, "1LqBGSKuX5yYUonjxT5qGfpUsXKYYWeabA", account.Address)

	// Same index on different chains never yields the same key
	keys := make(map[string]domain.Chain)
	for _, chain := range registry.List() {
		account, err := registry.Derive(chain, 0)
		require.NoError(t, err)
		_, dup := keys[string(account.Key())]
		assert.False(t, dup, chain.String())
		keys[string(account.Key())] = chain
	}
}
