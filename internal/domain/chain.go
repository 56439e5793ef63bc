// internal/domain/chain.go
package domain

import (
	"fmt"
	"strings"
)

// Chain identifies one of the supported collection networks
type Chain string

const (
	ChainBitcoin  Chain = "BITCOIN"
	ChainLitecoin Chain = "LITECOIN"
	ChainEthereum Chain = "ETHEREUM"
	ChainSolana   Chain = "SOLANA"
)

// AllChains lists every supported chain in display order
var AllChains = []Chain{ChainBitcoin, ChainLitecoin, ChainEthereum, ChainSolana}

// ParseChain accepts either the chain name or its native symbol, case-insensitive
func ParseChain(s string) (Chain, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BITCOIN", "BTC":
		return ChainBitcoin, nil
	case "LITECOIN", "LTC":
		return ChainLitecoin, nil
	case "ETHEREUM", "ETH":
		return ChainEthereum, nil
	case "SOLANA", "SOL":
		return ChainSolana, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedChain, s)
	}
}

// Symbol returns the native coin symbol
func (c Chain) Symbol() string {
	switch c {
	case ChainBitcoin:
		return "BTC"
	case ChainLitecoin:
		return "LTC"
	case ChainEthereum:
		return "ETH"
	case ChainSolana:
		return "SOL"
	}
	return ""
}

// Decimals is the exponent between the native integer unit
// (satoshi, litoshi, wei, lamport) and one whole coin.
func (c Chain) Decimals() int32 {
	switch c {
	case ChainBitcoin, ChainLitecoin:
		return 8
	case ChainEthereum:
		return 18
	case ChainSolana:
		return 9
	}
	return 0
}

// IsUTXO reports whether the chain uses the unspent-output model
func (c Chain) IsUTXO() bool {
	return c == ChainBitcoin || c == ChainLitecoin
}

// URIScheme is the payment URI scheme used for checkout QR payloads
func (c Chain) URIScheme() string {
	return strings.ToLower(string(c))
}

func (c Chain) String() string {
	return string(c)
}

// MaxDepositIndex bounds deposit indices to the non-hardened BIP32 range.
// Solana hardens the index itself, which has the same upper bound.
const MaxDepositIndex = uint32(1<<31 - 1)

// ChainDeriver derives deposit accounts for one chain from the process seed.
// Implementations are pure and safe for concurrent use.
type ChainDeriver interface {
	Chain() Chain

	// Derive returns the address and signing key for a deposit index
	Derive(index uint32) (*DerivedAccount, error)

	// ValidateAddress checks a destination address for this chain
	ValidateAddress(address string) error
}

// DerivedAccount is the signing handle for one deposit address.
// The key material is only exposed to chain packages through Key().
type DerivedAccount struct {
	Chain   Chain
	Index   uint32
	Path    string
	Address string
	key     []byte
}

// NewDerivedAccount wraps derived key material. The slice is copied.
func NewDerivedAccount(chain Chain, index uint32, path, address string, key []byte) *DerivedAccount {
	k := make([]byte, len(key))
	copy(k, key)
	return &DerivedAccount{
		Chain:   chain,
		Index:   index,
		Path:    path,
		Address: address,
		key:     k,
	}
}

// Key returns the raw private key bytes: a secp256k1 scalar for
// Bitcoin/Litecoin/Ethereum, the ed25519 seed for Solana.
func (a *DerivedAccount) Key() []byte {
	return a.key
}

// Zero wipes the key material
func (a *DerivedAccount) Zero() {
	for i := range a.key {
		a.key[i] = 0
	}
}
