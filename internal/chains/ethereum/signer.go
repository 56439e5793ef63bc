// internal/chains/ethereum/signer.go
package ethereum

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"crypto-collector/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// signTransaction signs with EIP-155 replay protection
func signTransaction(tx *types.Transaction, privateKey *ecdsa.PrivateKey, chainID *big.Int) (*types.Transaction, error) {
	signer := types.NewEIP155Signer(chainID)
	signedTx, err := types.SignTx(tx, signer, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return signedTx, nil
}

// recoverSigner recovers the sender address from a signed transaction
func recoverSigner(tx *types.Transaction, chainID *big.Int) (common.Address, error) {
	signer := types.NewEIP155Signer(chainID)

	sender, err := types.Sender(signer, tx)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover sender: %w", err)
	}

	return sender, nil
}

// accountKey parses the derived key and checks it controls the account address
func accountKey(account *domain.DerivedAccount) (*ecdsa.PrivateKey, error) {
	privateKey, err := crypto.ToECDSA(account.Key())
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	if crypto.PubkeyToAddress(privateKey.PublicKey) != common.HexToAddress(account.Address) {
		return nil, fmt.Errorf("signing key for index %d does not match address %s", account.Index, account.Address)
	}

	return privateKey, nil
}
