// internal/usecase/helpers.go
package usecase

import (
	"fmt"
	"net/url"

	"crypto-collector/internal/domain"
	"crypto-collector/pkg/utils"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/shopspring/decimal"
)

// ChainBackend holds the network-facing providers of one chain.
// UTXO and Params are set for Bitcoin/Litecoin, Account for Ethereum/Solana.
// Webhooks is optional.
type ChainBackend struct {
	Balances domain.BalanceProvider
	UTXO     domain.UTXOProvider
	Params   *chaincfg.Params
	Account  domain.AccountTransferProvider
	Webhooks domain.WebhookManager
}

// Backends maps each enabled chain to its providers
type Backends map[domain.Chain]*ChainBackend

func (b Backends) get(chain domain.Chain) (*ChainBackend, error) {
	backend, ok := b[chain]
	if !ok || backend == nil {
		return nil, fmt.Errorf("%w: no backend for %s", domain.ErrUnsupportedChain, chain)
	}
	return backend, nil
}

// paymentURI builds the QR payload shown at checkout: BIP21 for
// Bitcoin/Litecoin, EIP-681 (value in wei) for Ethereum, Solana Pay for Solana.
func paymentURI(chain domain.Chain, address string, amount decimal.Decimal) (string, error) {
	query := url.Values{}

	switch chain {
	case domain.ChainEthereum:
		wei, err := utils.ToNative(amount, chain.Decimals())
		if err != nil {
			return "", err
		}
		query.Set("value", wei.String())
	case domain.ChainBitcoin, domain.ChainLitecoin, domain.ChainSolana:
		query.Set("amount", amount.String())
	default:
		return "", fmt.Errorf("%w: %s", domain.ErrUnsupportedChain, chain)
	}

	return chain.URIScheme() + ":" + address + "?" + query.Encode(), nil
}

func depositIDs(deposits []*domain.DepositAddress) []string {
	ids := make([]string, len(deposits))
	for i, d := range deposits {
		ids[i] = d.ID
	}
	return ids
}
