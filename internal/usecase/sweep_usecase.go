// internal/usecase/sweep_usecase.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"crypto-collector/internal/chains"
	"crypto-collector/internal/chains/bitcoin"
	"crypto-collector/internal/domain"
	"crypto-collector/internal/repository"
	"crypto-collector/pkg/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const ledgerWriteAttempts = 3

type SweepUsecase struct {
	ledger           repository.DepositLedger
	derivers         *chains.Registry
	backends         Backends
	balances         *BalanceUsecase
	lookupTimeout    time.Duration
	broadcastTimeout time.Duration
	logger           *zap.Logger
}

// NewSweepUsecase wires the sweep engine. balances may be nil; when set its
// cache is invalidated after every sweep that changed the ledger.
func NewSweepUsecase(
	ledger repository.DepositLedger,
	derivers *chains.Registry,
	backends Backends,
	balances *BalanceUsecase,
	lookupTimeout time.Duration,
	broadcastTimeout time.Duration,
	logger *zap.Logger,
) *SweepUsecase {
	if lookupTimeout <= 0 {
		lookupTimeout = 15 * time.Second
	}
	if broadcastTimeout <= 0 {
		broadcastTimeout = 30 * time.Second
	}

	return &SweepUsecase{
		ledger:           ledger,
		derivers:         derivers,
		backends:         backends,
		balances:         balances,
		lookupTimeout:    lookupTimeout,
		broadcastTimeout: broadcastTimeout,
		logger:           logger,
	}
}

// Sweep moves the funds of every paid, unswept deposit address of a chain to
// destination. Per-address problems are reported in the result; an error is
// returned only when the run could not start. One sweep per chain runs at a
// time across every process sharing the ledger.
func (uc *SweepUsecase) Sweep(ctx context.Context, chain domain.Chain, destination string) (*domain.SweepResult, error) {
	deriver, err := uc.derivers.Get(chain)
	if err != nil {
		return nil, err
	}
	backend, err := uc.backends.get(chain)
	if err != nil {
		return nil, err
	}

	if err := deriver.ValidateAddress(destination); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	release, err := uc.ledger.LockSweep(ctx, chain)
	if err != nil {
		return nil, err
	}
	defer release()

	candidates, err := uc.ledger.ListEligible(ctx, chain)
	if err != nil {
		return nil, fmt.Errorf("failed to list sweep candidates: %w", err)
	}

	result := &domain.SweepResult{
		RunID:          uuid.New().String(),
		Chain:          chain,
		Destination:    destination,
		TransactionIDs: []string{},
	}

	log := uc.logger.With(
		zap.String("run_id", result.RunID),
		zap.String("chain", string(chain)),
		zap.String("destination", destination))
	log.Info("sweep started", zap.Int("candidates", len(candidates)))

	if len(candidates) == 0 {
		return result, nil
	}

	if chain.IsUTXO() {
		uc.sweepUTXO(ctx, deriver, backend, candidates, result, log)
	} else {
		uc.sweepAccounts(ctx, deriver, backend, candidates, result, log)
	}

	result.InitiatedCount = result.Count(domain.SweepStateSwept)

	if uc.balances != nil && (result.InitiatedCount > 0 || result.Count(domain.SweepStateEmpty) > 0) {
		uc.balances.Invalidate(context.WithoutCancel(ctx), chain)
	}

	log.Info("sweep finished",
		zap.Int("swept", result.InitiatedCount),
		zap.Int("empty", result.Count(domain.SweepStateEmpty)),
		zap.Int("fee_exceeds_balance", result.Count(domain.SweepStateFeeExceedsBalance)),
		zap.Int("failed", result.Count(domain.SweepStateFailed)),
		zap.Strings("tx_ids", result.TransactionIDs))

	return result, nil
}

// ============================================================================
// BITCOIN / LITECOIN
// ============================================================================

type utxoCandidate struct {
	deposit *domain.DepositAddress
	account *domain.DerivedAccount
	utxos   []domain.UTXO
}

// sweepUTXO spends the UTXOs of every candidate in one transaction
func (uc *SweepUsecase) sweepUTXO(
	ctx context.Context,
	deriver domain.ChainDeriver,
	backend *ChainBackend,
	candidates []*domain.DepositAddress,
	result *domain.SweepResult,
	log *zap.Logger,
) {
	if backend.UTXO == nil || backend.Params == nil {
		for _, d := range candidates {
			result.Outcomes = append(result.Outcomes, failed(d, errors.New("no UTXO provider configured")))
		}
		return
	}

	funded := make([]*utxoCandidate, 0, len(candidates))
	defer func() {
		for _, c := range funded {
			c.account.Zero()
		}
	}()

	for _, deposit := range candidates {
		if err := ctx.Err(); err != nil {
			result.Outcomes = append(result.Outcomes, failed(deposit, err))
			continue
		}

		account, err := deriver.Derive(deposit.DepositIndex)
		if err != nil {
			log.Error("failed to derive sweep key", zap.String("address", deposit.Address), zap.Error(err))
			result.Outcomes = append(result.Outcomes, failed(deposit, err))
			continue
		}
		if account.Address != deposit.Address {
			account.Zero()
			err := fmt.Errorf("derived %s for index %d, ledger has %s", account.Address, deposit.DepositIndex, deposit.Address)
			log.Error("deposit address does not match seed", zap.Error(err))
			result.Outcomes = append(result.Outcomes, failed(deposit, err))
			continue
		}

		lookupCtx, cancel := context.WithTimeout(ctx, uc.lookupTimeout)
		utxos, err := backend.UTXO.ListUnspent(lookupCtx, deposit.Address)
		cancel()
		if err != nil {
			account.Zero()
			log.Warn("failed to list UTXOs", zap.String("address", deposit.Address), zap.Error(err))
			result.Outcomes = append(result.Outcomes, failed(deposit, err))
			continue
		}

		if len(utxos) == 0 {
			account.Zero()
			result.Outcomes = append(result.Outcomes, uc.retireEmpty(ctx, deposit, log))
			continue
		}

		funded = append(funded, &utxoCandidate{deposit: deposit, account: account, utxos: utxos})
	}

	if len(funded) == 0 {
		return
	}

	lookupCtx, cancel := context.WithTimeout(ctx, uc.lookupTimeout)
	feeRate, err := backend.UTXO.FeeRate(lookupCtx)
	cancel()
	if err != nil {
		log.Error("failed to fetch fee rate", zap.Error(err))
		for _, c := range funded {
			result.Outcomes = append(result.Outcomes, failedWithAmount(c.deposit, big.NewInt(utxoValue(c.utxos)), err))
		}
		return
	}

	if feeRate < bitcoin.MinRelayFeeRate {
		log.Warn("fee rate below minimum relay fee, raising it",
			zap.Int64("quoted_sat_per_kvb", int64(feeRate)),
			zap.Int64("min_sat_per_kvb", int64(bitcoin.MinRelayFeeRate)))
	}

	outputVSize, err := bitcoin.OutputVSize(backend.Params, result.Destination)
	if err != nil {
		for _, c := range funded {
			result.Outcomes = append(result.Outcomes, failedWithAmount(c.deposit, big.NewInt(utxoValue(c.utxos)), err))
		}
		return
	}

	byAddress := make(map[string]*utxoCandidate, len(funded))
	sources := make([]bitcoin.SweepSource, 0, len(funded))
	for _, c := range funded {
		byAddress[c.account.Address] = c
		sources = append(sources, bitcoin.SweepSource{Account: c.account, UTXOs: c.utxos})
	}

	plan := bitcoin.PlanSweep(sources, feeRate, outputVSize)

	for _, s := range plan.FeeExceeds {
		c := byAddress[s.Account.Address]
		result.Outcomes = append(result.Outcomes, domain.AddressOutcome{
			DepositID:    c.deposit.ID,
			OrderID:      c.deposit.OrderID,
			Address:      c.deposit.Address,
			DepositIndex: c.deposit.DepositIndex,
			State:        domain.SweepStateFeeExceedsBalance,
			Amount:       big.NewInt(utxoValue(c.utxos)),
		})
	}

	if !plan.Viable() {
		if len(plan.FeeExceeds) > 0 {
			log.Info("sweep not worth its fee",
				zap.Int64("fee_rate_sat_per_kvb", int64(plan.FeeRate)),
				zap.Int("addresses", len(plan.FeeExceeds)))
		}
		return
	}

	included := make([]*domain.DepositAddress, 0, len(plan.Included))
	for _, s := range plan.Included {
		included = append(included, byAddress[s.Account.Address].deposit)
	}
	failAll := func(err error) {
		for _, s := range plan.Included {
			c := byAddress[s.Account.Address]
			result.Outcomes = append(result.Outcomes, failedWithAmount(c.deposit, big.NewInt(utxoValue(s.UTXOs)), err))
		}
	}

	tb, err := bitcoin.BuildSweep(backend.Params, plan, result.Destination)
	if err != nil {
		log.Error("failed to build sweep transaction", zap.Error(err))
		failAll(err)
		return
	}

	rawTx, err := tb.Serialize()
	if err != nil {
		failAll(err)
		return
	}

	broadcastCtx, cancel := context.WithTimeout(ctx, uc.broadcastTimeout)
	txID, err := backend.UTXO.Broadcast(broadcastCtx, rawTx)
	cancel()
	if err != nil {
		log.Error("sweep broadcast failed",
			zap.String("local_tx_hash", tb.TxHash()),
			zap.Error(err))
		failAll(err)
		return
	}
	if txID != tb.TxHash() {
		log.Warn("explorer returned a different txid",
			zap.String("explorer_tx_id", txID),
			zap.String("local_tx_hash", tb.TxHash()))
	}

	result.TransactionIDs = append(result.TransactionIDs, txID)

	ledgerErr := uc.markSwept(ctx, depositIDs(included), txID, log)

	for _, s := range plan.Included {
		c := byAddress[s.Account.Address]
		outcome := domain.AddressOutcome{
			DepositID:    c.deposit.ID,
			OrderID:      c.deposit.OrderID,
			Address:      c.deposit.Address,
			DepositIndex: c.deposit.DepositIndex,
			State:        domain.SweepStateSwept,
			TxID:         txID,
			Amount:       big.NewInt(utxoValue(s.UTXOs)),
			Fee:          big.NewInt(plan.Fee * int64(len(s.UTXOs)) / int64(plan.InputCount)),
		}
		if ledgerErr != nil {
			outcome.Error = ledgerErr.Error()
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	log.Info("sweep transaction broadcast",
		zap.String("tx_id", txID),
		zap.Int("inputs", plan.InputCount),
		zap.Int64("input_value", plan.InputValue),
		zap.Int64("fee", plan.Fee),
		zap.Int64("output_value", plan.OutputValue))
}

// ============================================================================
// ETHEREUM / SOLANA
// ============================================================================

// sweepAccounts sends one native transfer per funded address
func (uc *SweepUsecase) sweepAccounts(
	ctx context.Context,
	deriver domain.ChainDeriver,
	backend *ChainBackend,
	candidates []*domain.DepositAddress,
	result *domain.SweepResult,
	log *zap.Logger,
) {
	for _, deposit := range candidates {
		if err := ctx.Err(); err != nil {
			result.Outcomes = append(result.Outcomes, failed(deposit, err))
			continue
		}
		if backend.Account == nil {
			result.Outcomes = append(result.Outcomes, failed(deposit, errors.New("no transfer provider configured")))
			continue
		}

		outcome := uc.sweepAccount(ctx, deriver, backend, deposit, result.Destination, log)
		if outcome.State == domain.SweepStateSwept {
			result.TransactionIDs = append(result.TransactionIDs, outcome.TxID)
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
}

func (uc *SweepUsecase) sweepAccount(
	ctx context.Context,
	deriver domain.ChainDeriver,
	backend *ChainBackend,
	deposit *domain.DepositAddress,
	destination string,
	log *zap.Logger,
) domain.AddressOutcome {
	log = log.With(zap.String("address", deposit.Address), zap.Uint32("index", deposit.DepositIndex))

	account, err := deriver.Derive(deposit.DepositIndex)
	if err != nil {
		log.Error("failed to derive sweep key", zap.Error(err))
		return failed(deposit, err)
	}
	defer account.Zero()

	if account.Address != deposit.Address {
		err := fmt.Errorf("derived %s for index %d, ledger has %s", account.Address, deposit.DepositIndex, deposit.Address)
		log.Error("deposit address does not match seed", zap.Error(err))
		return failed(deposit, err)
	}

	lookupCtx, cancel := context.WithTimeout(ctx, uc.lookupTimeout)
	defer cancel()

	balance, err := backend.Account.Balance(lookupCtx, deposit.Address)
	if err != nil {
		log.Warn("failed to read balance", zap.Error(err))
		return failed(deposit, err)
	}

	if balance.Sign() == 0 {
		return uc.retireEmpty(ctx, deposit, log)
	}

	fee, err := backend.Account.TransferFee(lookupCtx, account, destination)
	if err != nil {
		log.Warn("failed to estimate transfer fee", zap.Error(err))
		return failedWithAmount(deposit, balance, err)
	}

	if balance.Cmp(fee) <= 0 {
		log.Info("balance does not cover transfer fee",
			zap.String("balance", balance.String()),
			zap.String("fee", fee.String()))
		return domain.AddressOutcome{
			DepositID:    deposit.ID,
			OrderID:      deposit.OrderID,
			Address:      deposit.Address,
			DepositIndex: deposit.DepositIndex,
			State:        domain.SweepStateFeeExceedsBalance,
			Amount:       balance,
			Fee:          fee,
		}
	}

	amount := new(big.Int).Sub(balance, fee)

	broadcastCtx, cancelBroadcast := context.WithTimeout(ctx, uc.broadcastTimeout)
	txID, err := backend.Account.Transfer(broadcastCtx, account, destination, amount, fee)
	cancelBroadcast()
	if err != nil {
		log.Error("sweep transfer failed", zap.Error(err))
		return failedWithAmount(deposit, balance, err)
	}

	outcome := domain.AddressOutcome{
		DepositID:    deposit.ID,
		OrderID:      deposit.OrderID,
		Address:      deposit.Address,
		DepositIndex: deposit.DepositIndex,
		State:        domain.SweepStateSwept,
		TxID:         txID,
		Amount:       amount,
		Fee:          fee,
	}

	if err := uc.markSwept(ctx, []string{deposit.ID}, txID, log); err != nil {
		outcome.Error = err.Error()
	}

	if deposit.WebhookID != nil && *deposit.WebhookID != "" && backend.Webhooks != nil {
		hookCtx, cancelHook := context.WithTimeout(context.WithoutCancel(ctx), uc.lookupTimeout)
		if err := backend.Webhooks.DeleteWebhook(hookCtx, *deposit.WebhookID); err != nil {
			log.Warn("failed to delete address webhook",
				zap.String("webhook_id", *deposit.WebhookID),
				zap.Error(err))
		}
		cancelHook()
	}

	log.Info("sweep transfer submitted",
		zap.String("tx_id", txID),
		zap.String("amount", amount.String()),
		zap.String("fee", fee.String()))

	return outcome
}

// ============================================================================
// LEDGER UPDATES
// ============================================================================

// retireEmpty marks an address with nothing on it as withdrawn
func (uc *SweepUsecase) retireEmpty(ctx context.Context, deposit *domain.DepositAddress, log *zap.Logger) domain.AddressOutcome {
	if err := uc.ledger.MarkWithdrawn(ctx, []string{deposit.ID}, domain.SweepOutcomeEmpty, nil); err != nil {
		log.Error("failed to retire empty address", zap.String("address", deposit.Address), zap.Error(err))
		return failed(deposit, err)
	}

	return domain.AddressOutcome{
		DepositID:    deposit.ID,
		OrderID:      deposit.OrderID,
		Address:      deposit.Address,
		DepositIndex: deposit.DepositIndex,
		State:        domain.SweepStateEmpty,
		Amount:       new(big.Int),
	}
}

// markSwept records a broadcast transaction. Funds have already moved, so
// caller cancellation is ignored and the write is retried.
func (uc *SweepUsecase) markSwept(ctx context.Context, ids []string, txID string, log *zap.Logger) error {
	ctx = context.WithoutCancel(ctx)

	var err error
	for attempt := 1; attempt <= ledgerWriteAttempts; attempt++ {
		err = uc.ledger.MarkWithdrawn(ctx, ids, domain.SweepOutcomeSwept, utils.StringPtr(txID))
		if err == nil || errors.Is(err, domain.ErrAlreadyWithdrawn) {
			return err
		}
		time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
	}

	log.Error("CRITICAL: broadcast succeeded but ledger was not updated",
		zap.String("tx_id", txID),
		zap.Strings("deposit_ids", ids),
		zap.Error(err))
	return fmt.Errorf("ledger update after broadcast %s: %w", txID, err)
}

func failed(deposit *domain.DepositAddress, err error) domain.AddressOutcome {
	return failedWithAmount(deposit, nil, err)
}

func failedWithAmount(deposit *domain.DepositAddress, amount *big.Int, err error) domain.AddressOutcome {
	return domain.AddressOutcome{
		DepositID:    deposit.ID,
		OrderID:      deposit.OrderID,
		Address:      deposit.Address,
		DepositIndex: deposit.DepositIndex,
		State:        domain.SweepStateFailed,
		Amount:       amount,
		Error:        err.Error(),
	}
}

func utxoValue(utxos []domain.UTXO) int64 {
	var total int64
	for _, u := range utxos {
		total += u.Value
	}
	return total
}
