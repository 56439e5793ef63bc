// internal/chains/bitcoin/bitcoin.go
package bitcoin

import (
	"fmt"

	"crypto-collector/internal/domain"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"
)

// BIP44 coin types
const (
	CoinTypeBitcoin  uint32 = 0
	CoinTypeLitecoin uint32 = 2
)

// LitecoinMainNetParams only carries what address encoding and key
// serialisation need; consensus fields are inherited from Bitcoin and unused.
var LitecoinMainNetParams = litecoinParams(chaincfg.MainNetParams, litecoinOverrides{
	name:             "litecoin-mainnet",
	net:              0xdbb6c0fb,
	pubKeyHashAddrID: 0x30, // L
	scriptHashAddrID: 0x32, // M
	privateKeyID:     0xB0,
	bech32HRP:        "ltc",
	hdPrivateKeyID:   [4]byte{0x01, 0x9d, 0x9c, 0xfe}, // Ltpv
	hdPublicKeyID:    [4]byte{0x01, 0x9d, 0xa4, 0x62}, // Ltub
})

var LitecoinTestNetParams = litecoinParams(chaincfg.TestNet3Params, litecoinOverrides{
	name:             "litecoin-testnet4",
	net:              0xf1c8d2fd,
	pubKeyHashAddrID: 0x6f,
	scriptHashAddrID: 0x3a,
	privateKeyID:     0xef,
	bech32HRP:        "tltc",
	hdPrivateKeyID:   [4]byte{0x04, 0x35, 0x83, 0x94}, // tprv
	hdPublicKeyID:    [4]byte{0x04, 0x35, 0x87, 0xcf}, // tpub
})

// btcutil only recognises bech32 prefixes of registered networks
func init() {
	for _, params := range []*chaincfg.Params{&LitecoinMainNetParams, &LitecoinTestNetParams} {
		if err := chaincfg.Register(params); err != nil {
			panic(fmt.Sprintf("register %s params: %v", params.Name, err))
		}
	}
}

type litecoinOverrides struct {
	name             string
	net              wire.BitcoinNet
	pubKeyHashAddrID byte
	scriptHashAddrID byte
	privateKeyID     byte
	bech32HRP        string
	hdPrivateKeyID   [4]byte
	hdPublicKeyID    [4]byte
}

func litecoinParams(base chaincfg.Params, o litecoinOverrides) chaincfg.Params {
	params := base
	params.Name = o.name
	params.Net = o.net
	params.PubKeyHashAddrID = o.pubKeyHashAddrID
	params.ScriptHashAddrID = o.scriptHashAddrID
	params.PrivateKeyID = o.privateKeyID
	params.Bech32HRPSegwit = o.bech32HRP
	params.HDPrivateKeyID = o.hdPrivateKeyID
	params.HDPublicKeyID = o.hdPublicKeyID
	params.HDCoinType = CoinTypeLitecoin
	params.DNSSeeds = nil
	params.Checkpoints = nil
	return params
}

// NetworkParams returns the address parameters for a UTXO chain and network name
func NetworkParams(chain domain.Chain, network string) (*chaincfg.Params, error) {
	switch chain {
	case domain.ChainBitcoin:
		switch network {
		case "mainnet":
			return &chaincfg.MainNetParams, nil
		case "testnet":
			return &chaincfg.TestNet3Params, nil
		case "regtest":
			return &chaincfg.RegressionNetParams, nil
		}
	case domain.ChainLitecoin:
		switch network {
		case "mainnet":
			return &LitecoinMainNetParams, nil
		case "testnet":
			return &LitecoinTestNetParams, nil
		}
	default:
		return nil, fmt.Errorf("%w: %s is not a UTXO chain", domain.ErrUnsupportedChain, chain)
	}

	return nil, fmt.Errorf("unsupported %s network: %s", chain, network)
}

// CoinType returns the BIP44 coin type of a UTXO chain.
// Testnets keep the mainnet coin type so paths never depend on configuration.
func CoinType(chain domain.Chain) (uint32, error) {
	switch chain {
	case domain.ChainBitcoin:
		return CoinTypeBitcoin, nil
	case domain.ChainLitecoin:
		return CoinTypeLitecoin, nil
	}
	return 0, fmt.Errorf("%w: %s", domain.ErrUnsupportedChain, chain)
}

// LogNetwork announces which network a UTXO chain is running on
func LogNetwork(chain domain.Chain, network string, logger *zap.Logger) {
	if network == "mainnet" {
		logger.Warn("MAINNET ACTIVE - SWEEPS MOVE REAL FUNDS", zap.String("chain", chain.String()))
		return
	}
	logger.Info("Using test network", zap.String("chain", chain.String()), zap.String("network", network))
}
