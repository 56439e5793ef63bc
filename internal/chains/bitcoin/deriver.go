// internal/chains/bitcoin/deriver.go
package bitcoin

import (
	"fmt"

	"crypto-collector/internal/domain"
	"crypto-collector/internal/security"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
)

// Deriver produces compressed-key P2PKH deposit addresses on
// m/44'/coin'/0'/0/index for Bitcoin and Litecoin.
type Deriver struct {
	chain    domain.Chain
	params   *chaincfg.Params
	coinType uint32
	branch   *hdkeychain.ExtendedKey
}

func NewDeriver(chain domain.Chain, seed *security.SeedAuthority, params *chaincfg.Params) (*Deriver, error) {
	coinType, err := CoinType(chain)
	if err != nil {
		return nil, err
	}

	branch, err := seed.Secp256k1Branch(
		hdkeychain.HardenedKeyStart+44,
		hdkeychain.HardenedKeyStart+coinType,
		hdkeychain.HardenedKeyStart+0,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to derive %s account branch: %w", chain, err)
	}

	return &Deriver{
		chain:    chain,
		params:   params,
		coinType: coinType,
		branch:   branch,
	}, nil
}

func (d *Deriver) Chain() domain.Chain {
	return d.chain
}

// Params returns the network parameters addresses are encoded for
func (d *Deriver) Params() *chaincfg.Params {
	return d.params
}

func (d *Deriver) Derive(index uint32) (*domain.DerivedAccount, error) {
	if index > domain.MaxDepositIndex {
		return nil, &domain.DerivationError{Chain: d.chain, Index: index, Err: domain.ErrInvalidIndex}
	}

	child, err := d.branch.Derive(index)
	if err != nil {
		return nil, &domain.DerivationError{Chain: d.chain, Index: index, Err: err}
	}

	privateKey, err := child.ECPrivKey()
	if err != nil {
		return nil, &domain.DerivationError{Chain: d.chain, Index: index, Err: err}
	}

	address, err := p2pkhAddress(privateKey.PubKey(), d.params)
	if err != nil {
		return nil, &domain.DerivationError{Chain: d.chain, Index: index, Err: err}
	}

	path := fmt.Sprintf("m/44'/%d'/0'/0/%d", d.coinType, index)
	return domain.NewDerivedAccount(d.chain, index, path, address.EncodeAddress(), privateKey.Serialize()), nil
}

// ValidateAddress accepts any standard address type of the configured network
func (d *Deriver) ValidateAddress(address string) error {
	addr, err := btcutil.DecodeAddress(address, d.params)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrInvalidAddress, d.chain, err)
	}

	if !addr.IsForNet(d.params) {
		return fmt.Errorf("%w: %s address is not for %s", domain.ErrInvalidAddress, d.chain, d.params.Name)
	}

	return nil
}

func p2pkhAddress(publicKey *btcec.PublicKey, params *chaincfg.Params) (*btcutil.AddressPubKeyHash, error) {
	pubKeyHash := btcutil.Hash160(publicKey.SerializeCompressed())
	address, err := btcutil.NewAddressPubKeyHash(pubKeyHash, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create address: %w", err)
	}
	return address, nil
}
