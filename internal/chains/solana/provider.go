// internal/chains/solana/provider.go
package solana

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"

	"crypto-collector/internal/domain"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// MaxAccountsPerRequest is the getMultipleAccounts limit
const MaxAccountsPerRequest = 100

// rpcClient is the subset of rpc.Client the provider uses
type rpcClient interface {
	GetBalance(ctx context.Context, account solanago.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetMultipleAccounts(ctx context.Context, accounts ...solanago.PublicKey) (*rpc.GetMultipleAccountsResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetFeeForMessage(ctx context.Context, message string, commitment rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solanago.Transaction, opts rpc.TransactionOpts) (solanago.Signature, error)
}

// Provider reads lamport balances and submits native transfers over JSON-RPC
type Provider struct {
	client     rpcClient
	commitment rpc.CommitmentType
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewProvider(rpcURL string, requestsPerSecond float64, logger *zap.Logger) *Provider {
	return newProvider(rpc.New(rpcURL), requestsPerSecond, logger)
}

func newProvider(client rpcClient, requestsPerSecond float64, logger *zap.Logger) *Provider {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}

	return &Provider{
		client:     client,
		commitment: rpc.CommitmentConfirmed,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), int(requestsPerSecond)+1),
		logger:     logger,
	}
}

func (p *Provider) BatchSize() int {
	return MaxAccountsPerRequest
}

// Balances reads up to 100 accounts in one call; unknown accounts hold 0
func (p *Provider) Balances(ctx context.Context, addresses []string) (map[string]*big.Int, error) {
	if len(addresses) > MaxAccountsPerRequest {
		return nil, fmt.Errorf("batch of %d exceeds limit %d", len(addresses), MaxAccountsPerRequest)
	}

	keys := make([]solanago.PublicKey, 0, len(addresses))
	for _, address := range addresses {
		key, err := solanago.PublicKeyFromBase58(address)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAddress, address)
		}
		keys = append(keys, key)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := p.client.GetMultipleAccounts(ctx, keys...)
	if err != nil {
		return nil, fmt.Errorf("getMultipleAccounts failed: %w", err)
	}
	if len(result.Value) != len(keys) {
		return nil, fmt.Errorf("getMultipleAccounts returned %d accounts for %d keys", len(result.Value), len(keys))
	}

	balances := make(map[string]*big.Int, len(addresses))
	for i, account := range result.Value {
		lamports := uint64(0)
		if account != nil {
			lamports = account.Lamports
		}
		balances[addresses[i]] = new(big.Int).SetUint64(lamports)
	}

	return balances, nil
}

func (p *Provider) Balance(ctx context.Context, address string) (*big.Int, error) {
	key, err := solanago.PublicKeyFromBase58(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAddress, address)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := p.client.GetBalance(ctx, key, p.commitment)
	if err != nil {
		return nil, fmt.Errorf("getBalance failed for %s: %w", address, err)
	}

	return new(big.Int).SetUint64(result.Value), nil
}

// TransferFee asks the cluster what the transfer message would cost
func (p *Provider) TransferFee(ctx context.Context, from *domain.DerivedAccount, to string) (*big.Int, error) {
	_, fromKey, err := accountKey(from)
	if err != nil {
		return nil, err
	}

	tx, err := p.buildTransfer(ctx, fromKey, to, 1)
	if err != nil {
		return nil, err
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize message: %w", err)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := p.client.GetFeeForMessage(ctx, base64.StdEncoding.EncodeToString(message), p.commitment)
	if err != nil {
		return nil, fmt.Errorf("getFeeForMessage failed: %w", err)
	}
	if result == nil || result.Value == nil {
		return nil, errors.New("getFeeForMessage returned no fee")
	}

	return new(big.Int).SetUint64(*result.Value), nil
}

// Transfer signs and submits without waiting for confirmation
func (p *Provider) Transfer(ctx context.Context, from *domain.DerivedAccount, to string, amount, fee *big.Int) (string, error) {
	if amount == nil || amount.Sign() <= 0 || !amount.IsUint64() {
		return "", fmt.Errorf("%w: transfer amount must be a positive lamport count", domain.ErrInvalidAmount)
	}

	privateKey, fromKey, err := accountKey(from)
	if err != nil {
		return "", err
	}

	tx, err := p.buildTransfer(ctx, fromKey, to, amount.Uint64())
	if err != nil {
		return "", err
	}

	if _, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(fromKey) {
			return &privateKey
		}
		return nil
	}); err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return "", err
	}

	signature, err := p.client.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		PreflightCommitment: p.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	p.logger.Info("SOL transfer submitted",
		zap.String("from", from.Address),
		zap.String("to", to),
		zap.String("lamports", amount.String()),
		zap.String("fee", fee.String()),
		zap.String("signature", signature.String()))

	return signature.String(), nil
}

func (p *Provider) buildTransfer(ctx context.Context, from solanago.PublicKey, to string, lamports uint64) (*solanago.Transaction, error) {
	toKey, err := solanago.PublicKeyFromBase58(to)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidAddress, to)
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	recent, err := p.client.GetLatestBlockhash(ctx, p.commitment)
	if err != nil {
		return nil, fmt.Errorf("getLatestBlockhash failed: %w", err)
	}
	if recent == nil || recent.Value == nil {
		return nil, errors.New("getLatestBlockhash returned no blockhash")
	}

	tx, err := solanago.NewTransaction(
		[]solanago.Instruction{
			system.NewTransferInstruction(lamports, from, toKey).Build(),
		},
		recent.Value.Blockhash,
		solanago.TransactionPayer(from),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}

	return tx, nil
}
