// internal/usecase/deposit_usecase.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-collector/internal/chains"
	"crypto-collector/internal/domain"
	"crypto-collector/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ExpectedAmountPlaces is the precision of quoted crypto amounts
const ExpectedAmountPlaces = 8

type DepositUsecase struct {
	ledger       repository.DepositLedger
	derivers     *chains.Registry
	prices       domain.PriceProvider
	priceTimeout time.Duration
	logger       *zap.Logger
}

func NewDepositUsecase(
	ledger repository.DepositLedger,
	derivers *chains.Registry,
	prices domain.PriceProvider,
	priceTimeout time.Duration,
	logger *zap.Logger,
) *DepositUsecase {
	if priceTimeout <= 0 {
		priceTimeout = 10 * time.Second
	}
	return &DepositUsecase{
		ledger:       ledger,
		derivers:     derivers,
		prices:       prices,
		priceTimeout: priceTimeout,
		logger:       logger,
	}
}

// ============================================================================
// ISSUANCE
// ============================================================================

// Issue hands out a fresh single-use deposit address for an order and quotes
// the crypto amount at the current USD price. Calling it again for the same
// (order, chain) returns the original row and quote.
func (uc *DepositUsecase) Issue(ctx context.Context, orderID string, chain domain.Chain, fiatAmountUSD decimal.Decimal) (*domain.Invoice, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, errors.New("order id is required")
	}
	if !fiatAmountUSD.IsPositive() {
		return nil, fmt.Errorf("%w: fiat amount must be positive", domain.ErrInvalidAmount)
	}
	if !fiatAmountUSD.Equal(fiatAmountUSD.Truncate(2)) {
		return nil, fmt.Errorf("%w: fiat amount %s has sub-cent precision", domain.ErrInvalidAmount, fiatAmountUSD)
	}

	deriver, err := uc.derivers.Get(chain)
	if err != nil {
		return nil, err
	}

	existing, err := uc.ledger.GetByOrder(ctx, orderID, chain)
	if err == nil {
		uc.logger.Info("deposit address already issued",
			zap.String("order_id", orderID),
			zap.String("chain", string(chain)),
			zap.String("address", existing.Address))
		return uc.invoice(existing)
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}

	priceCtx, cancel := context.WithTimeout(ctx, uc.priceTimeout)
	price, err := uc.prices.PriceUSD(priceCtx, chain.Symbol())
	cancel()
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: %s quoted at %s", domain.ErrPriceUnavailable, chain.Symbol(), price)
	}

	expected := fiatAmountUSD.DivRound(price, ExpectedAmountPlaces)
	if !expected.IsPositive() {
		return nil, fmt.Errorf("%w: %s USD is below one unit of %s at %s", domain.ErrInvalidAmount, fiatAmountUSD, chain.Symbol(), price)
	}

	deposit, err := uc.ledger.Issue(ctx, chain, orderID, func(index uint32) (*domain.DepositAddress, error) {
		account, err := deriver.Derive(index)
		if err != nil {
			return nil, err
		}
		defer account.Zero()

		return &domain.DepositAddress{
			Address:        account.Address,
			ExpectedAmount: expected.StringFixed(ExpectedAmountPlaces),
			FiatAmountUSD:  fiatAmountUSD.StringFixed(2),
			PriceUSD:       price.String(),
		}, nil
	})
	if errors.Is(err, domain.ErrOrderAlreadyIssued) {
		// lost a race with a concurrent checkout for the same order
		existing, getErr := uc.ledger.GetByOrder(ctx, orderID, chain)
		if getErr != nil {
			return nil, err
		}
		return uc.invoice(existing)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to issue deposit address: %w", err)
	}

	uc.logger.Info("deposit address issued",
		zap.String("order_id", orderID),
		zap.String("chain", string(chain)),
		zap.Uint32("index", deposit.DepositIndex),
		zap.String("address", deposit.Address),
		zap.String("expected_amount", deposit.ExpectedAmount),
		zap.String("price_usd", deposit.PriceUSD))

	return uc.invoice(deposit)
}

func (uc *DepositUsecase) invoice(deposit *domain.DepositAddress) (*domain.Invoice, error) {
	amount, err := decimal.NewFromString(deposit.ExpectedAmount)
	if err != nil {
		return nil, fmt.Errorf("stored expected amount %q: %w", deposit.ExpectedAmount, err)
	}

	uri, err := paymentURI(deposit.Chain, deposit.Address, amount)
	if err != nil {
		return nil, err
	}

	return &domain.Invoice{
		Deposit:    deposit,
		Symbol:     deposit.Chain.Symbol(),
		PaymentURI: uri,
	}, nil
}

// ============================================================================
// CONFIRMATION
// ============================================================================

// MarkPaid records an incoming payment confirmed by the external listener
func (uc *DepositUsecase) MarkPaid(ctx context.Context, chain domain.Chain, address, paymentTxHash string) (*domain.DepositAddress, error) {
	deposit, err := uc.ledger.GetByAddress(ctx, chain, strings.TrimSpace(address))
	if err != nil {
		return nil, err
	}

	if err := uc.ledger.MarkPaid(ctx, deposit.ID, paymentTxHash); err != nil {
		return nil, err
	}

	uc.logger.Info("deposit marked paid",
		zap.String("order_id", deposit.OrderID),
		zap.String("chain", string(chain)),
		zap.String("address", deposit.Address),
		zap.String("tx_hash", paymentTxHash))

	return uc.ledger.GetByID(ctx, deposit.ID)
}

// ListDeposits returns every row of a chain, newest index first
func (uc *DepositUsecase) ListDeposits(ctx context.Context, chain domain.Chain) ([]*domain.DepositAddress, error) {
	return uc.ledger.ListByChain(ctx, chain)
}
