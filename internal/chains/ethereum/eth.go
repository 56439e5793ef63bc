// internal/chains/ethereum/eth.go
package ethereum

import (
	"context"
	"fmt"
	"math/big"

	"crypto-collector/internal/domain"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// gasPrice returns the node's suggestion capped at MaxGasPrice
func (p *Provider) gasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := p.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	if p.config.MaxGasPrice != nil && gasPrice.Cmp(p.config.MaxGasPrice) > 0 {
		p.logger.Warn("Gas price capped",
			zap.String("suggested", gasPrice.String()),
			zap.String("cap", p.config.MaxGasPrice.String()))
		gasPrice = new(big.Int).Set(p.config.MaxGasPrice)
	}

	return gasPrice, nil
}

// TransferFee quotes gasLimit * gasPrice for a plain value transfer
func (p *Provider) TransferFee(ctx context.Context, from *domain.DerivedAccount, to string) (*big.Int, error) {
	gasPrice, err := p.gasPrice(ctx)
	if err != nil {
		return nil, err
	}

	return new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(p.config.GasLimitETH)), nil
}

// Transfer sends amount wei paying exactly the quoted fee
func (p *Provider) Transfer(ctx context.Context, from *domain.DerivedAccount, to string, amount, fee *big.Int) (string, error) {
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("%w: transfer amount must be positive", domain.ErrInvalidAmount)
	}
	if !common.IsHexAddress(to) {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidAddress, to)
	}

	p.logger.Info("Sending ETH",
		zap.String("from", from.Address),
		zap.String("to", to),
		zap.String("amount", amount.String()))

	privateKey, err := accountKey(from)
	if err != nil {
		return "", err
	}

	gasLimit := new(big.Int).SetUint64(p.config.GasLimitETH)
	gasPrice := new(big.Int).Quo(fee, gasLimit)
	if gasPrice.Sign() <= 0 {
		return "", fmt.Errorf("%w: fee %s below one wei per gas", domain.ErrInvalidAmount, fee)
	}

	nonce, err := p.client.PendingNonceAt(ctx, common.HexToAddress(from.Address))
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	toAddr := common.HexToAddress(to)
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &toAddr,
		Value:    amount,
		Gas:      p.config.GasLimitETH,
		GasPrice: gasPrice,
	})

	signedTx, err := signTransaction(tx, privateKey, p.config.ChainID)
	if err != nil {
		return "", err
	}

	sender, err := recoverSigner(signedTx, p.config.ChainID)
	if err != nil {
		return "", err
	}
	if sender != common.HexToAddress(from.Address) {
		return "", fmt.Errorf("signed transaction recovers to %s, expected %s", sender.Hex(), from.Address)
	}

	if err := p.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	txHash := signedTx.Hash().Hex()
	p.logger.Info("ETH transaction sent",
		zap.String("tx_hash", txHash),
		zap.String("fee", new(big.Int).Mul(gasPrice, gasLimit).String()))

	return txHash, nil
}
