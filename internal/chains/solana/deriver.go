// internal/chains/solana/deriver.go
package solana

import (
	"crypto/ed25519"
	"fmt"

	"crypto-collector/internal/domain"
	"crypto-collector/internal/security"

	solanago "github.com/gagliardetto/solana-go"
)

const coinType uint32 = 501

// Deriver produces base58 ed25519 addresses on the SLIP-0010 path m/44'/501'/index'/0'
type Deriver struct {
	seed *security.SeedAuthority
}

func NewDeriver(seed *security.SeedAuthority) *Deriver {
	return &Deriver{seed: seed}
}

func (d *Deriver) Chain() domain.Chain {
	return domain.ChainSolana
}

func (d *Deriver) Derive(index uint32) (*domain.DerivedAccount, error) {
	if index > domain.MaxDepositIndex {
		return nil, &domain.DerivationError{Chain: domain.ChainSolana, Index: index, Err: domain.ErrInvalidIndex}
	}

	node := d.seed.Ed25519Derive(44, coinType, index, 0)
	privateKey := solanago.PrivateKey(ed25519.NewKeyFromSeed(node.Key[:]))

	path := fmt.Sprintf("m/44'/%d'/%d'/0'", coinType, index)
	return domain.NewDerivedAccount(domain.ChainSolana, index, path, privateKey.PublicKey().String(), node.Key[:]), nil
}

func (d *Deriver) ValidateAddress(address string) error {
	if _, err := solanago.PublicKeyFromBase58(address); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidAddress, err)
	}
	return nil
}

// accountKey expands the derived seed and checks it controls the account address
func accountKey(account *domain.DerivedAccount) (solanago.PrivateKey, solanago.PublicKey, error) {
	if len(account.Key()) != ed25519.SeedSize {
		return nil, solanago.PublicKey{}, fmt.Errorf("invalid ed25519 seed length %d", len(account.Key()))
	}

	privateKey := solanago.PrivateKey(ed25519.NewKeyFromSeed(account.Key()))
	publicKey := privateKey.PublicKey()

	if publicKey.String() != account.Address {
		return nil, solanago.PublicKey{}, fmt.Errorf("signing key for index %d does not match address %s", account.Index, account.Address)
	}

	return privateKey, publicKey, nil
}
