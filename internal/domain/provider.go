// internal/domain/provider.go
package domain

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
)

// PriceProvider quotes the current USD price of a coin symbol
type PriceProvider interface {
	PriceUSD(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// BalanceProvider looks up native balances for a batch of addresses.
// Callers never pass more than BatchSize addresses in one call.
type BalanceProvider interface {
	BatchSize() int
	Balances(ctx context.Context, addresses []string) (map[string]*big.Int, error)
}

// UTXOProvider is the block-explorer surface the Bitcoin/Litecoin sweep needs
type UTXOProvider interface {
	ListUnspent(ctx context.Context, address string) ([]UTXO, error)
	FeeRate(ctx context.Context) (FeeRate, error)
	Broadcast(ctx context.Context, rawTxHex string) (string, error)
}

// AccountTransferProvider moves the native balance of an account-model
// address (Ethereum, Solana). Transfer submits and returns without
// waiting for confirmation; fee is the quote TransferFee returned and
// must not be exceeded.
type AccountTransferProvider interface {
	Balance(ctx context.Context, address string) (*big.Int, error)
	TransferFee(ctx context.Context, from *DerivedAccount, to string) (*big.Int, error)
	Transfer(ctx context.Context, from *DerivedAccount, to string, amount, fee *big.Int) (string, error)
}

// WebhookManager tears down external address subscriptions
type WebhookManager interface {
	DeleteWebhook(ctx context.Context, webhookID string) error
}
