// internal/chains/ethereum/ethereum.go
package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// rpcClient is the subset of ethclient.Client the provider uses
type rpcClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Provider reads balances and sends native ETH through a JSON-RPC node
type Provider struct {
	client rpcClient
	logger *zap.Logger
	config *Config
}

type Config struct {
	RPCURL      string
	ChainID     *big.Int
	GasLimitETH uint64
	MaxGasPrice *big.Int
}

func DefaultConfig(rpcURL string) *Config {
	return &Config{
		RPCURL:      rpcURL,
		GasLimitETH: 21000,             // Standard ETH transfer
		MaxGasPrice: big.NewInt(100e9), // 100 Gwei
	}
}

// NewProvider dials the node and reads its chain id
func NewProvider(ctx context.Context, config *Config, logger *zap.Logger) (*Provider, error) {
	client, err := ethclient.DialContext(ctx, config.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum: %w", err)
	}

	return newProvider(ctx, client, config, logger)
}

func newProvider(ctx context.Context, client rpcClient, config *Config, logger *zap.Logger) (*Provider, error) {
	if config.ChainID == nil {
		chainID, err := client.ChainID(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get chain ID: %w", err)
		}
		config.ChainID = chainID
	}

	logger.Info("Ethereum provider initialized",
		zap.String("chain_id", config.ChainID.String()),
		zap.String("max_gas_price", config.MaxGasPrice.String()))

	return &Provider{
		client: client,
		logger: logger,
		config: config,
	}, nil
}

// BatchSize is 1: public endpoints have no multi-address balance call
func (p *Provider) BatchSize() int {
	return 1
}

func (p *Provider) Balances(ctx context.Context, addresses []string) (map[string]*big.Int, error) {
	balances := make(map[string]*big.Int, len(addresses))
	for _, address := range addresses {
		balance, err := p.Balance(ctx, address)
		if err != nil {
			return nil, err
		}
		balances[address] = balance
	}
	return balances, nil
}

// Balance returns the latest balance in wei
func (p *Provider) Balance(ctx context.Context, address string) (*big.Int, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid Ethereum address: %s", address)
	}

	balance, err := p.client.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get ETH balance for %s: %w", address, err)
	}

	return balance, nil
}
