// internal/chains/ethereum/deriver.go
package ethereum

import (
	"fmt"
	"strings"

	"crypto-collector/internal/domain"
	"crypto-collector/internal/security"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const coinType uint32 = 60

// Deriver produces EIP-55 checksummed addresses on m/44'/60'/0'/0/index
type Deriver struct {
	branch *hdkeychain.ExtendedKey
}

func NewDeriver(seed *security.SeedAuthority) (*Deriver, error) {
	branch, err := seed.Secp256k1Branch(
		hdkeychain.HardenedKeyStart+44,
		hdkeychain.HardenedKeyStart+coinType,
		hdkeychain.HardenedKeyStart+0,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to derive ethereum account branch: %w", err)
	}

	return &Deriver{branch: branch}, nil
}

func (d *Deriver) Chain() domain.Chain {
	return domain.ChainEthereum
}

func (d *Deriver) Derive(index uint32) (*domain.DerivedAccount, error) {
	if index > domain.MaxDepositIndex {
		return nil, &domain.DerivationError{Chain: domain.ChainEthereum, Index: index, Err: domain.ErrInvalidIndex}
	}

	child, err := d.branch.Derive(index)
	if err != nil {
		return nil, &domain.DerivationError{Chain: domain.ChainEthereum, Index: index, Err: err}
	}

	ecPriv, err := child.ECPrivKey()
	if err != nil {
		return nil, &domain.DerivationError{Chain: domain.ChainEthereum, Index: index, Err: err}
	}

	keyBytes := ecPriv.Serialize()
	privateKey, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, &domain.DerivationError{Chain: domain.ChainEthereum, Index: index, Err: err}
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey).Hex()
	path := fmt.Sprintf("m/44'/%d'/0'/0/%d", coinType, index)

	return domain.NewDerivedAccount(domain.ChainEthereum, index, path, address, keyBytes), nil
}

// ValidateAddress requires 20 hex bytes; mixed-case input must carry a valid EIP-55 checksum
func (d *Deriver) ValidateAddress(address string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: invalid Ethereum address format", domain.ErrInvalidAddress)
	}

	addr := common.HexToAddress(address)
	if addr == (common.Address{}) {
		return fmt.Errorf("%w: zero address", domain.ErrInvalidAddress)
	}

	body := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	mixedCase := strings.ToLower(body) != body && strings.ToUpper(body) != body
	if mixedCase && addr.Hex()[2:] != body {
		return fmt.Errorf("%w: invalid address checksum", domain.ErrInvalidAddress)
	}

	return nil
}
