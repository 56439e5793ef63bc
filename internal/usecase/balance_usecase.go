// internal/usecase/balance_usecase.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"crypto-collector/internal/domain"
	"crypto-collector/internal/repository"
	"crypto-collector/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BalanceCache stores complete chain balances between polls
type BalanceCache interface {
	Get(ctx context.Context, chain domain.Chain) (domain.ChainBalance, bool, error)
	Set(ctx context.Context, balance domain.ChainBalance) error
	Invalidate(ctx context.Context, chain domain.Chain) error
}

type BalanceUsecase struct {
	ledger         repository.DepositLedger
	backends       Backends
	cache          BalanceCache
	lookupTimeout  time.Duration
	maxConcurrency int
	logger         *zap.Logger
	now            func() time.Time
}

// NewBalanceUsecase wires the aggregator. cache may be nil.
func NewBalanceUsecase(
	ledger repository.DepositLedger,
	backends Backends,
	cache BalanceCache,
	lookupTimeout time.Duration,
	logger *zap.Logger,
) *BalanceUsecase {
	if lookupTimeout <= 0 {
		lookupTimeout = 15 * time.Second
	}
	return &BalanceUsecase{
		ledger:         ledger,
		backends:       backends,
		cache:          cache,
		lookupTimeout:  lookupTimeout,
		maxConcurrency: 4,
		logger:         logger,
		now:            time.Now,
	}
}

type batchResult struct {
	sum *big.Int
	err error
}

// TotalBalance sums the on-chain balance of every paid, unswept deposit
// address of a chain. It never fails: lookup problems are reported through
// Degraded and Error so a zero total is never mistaken for an empty wallet.
func (uc *BalanceUsecase) TotalBalance(ctx context.Context, chain domain.Chain) domain.ChainBalance {
	balance := domain.ChainBalance{
		Chain:  chain,
		Symbol: chain.Symbol(),
		Native: new(big.Int),
	}
	degrade := func(err error) domain.ChainBalance {
		balance.Degraded = true
		balance.Error = err.Error()
		balance.Total = utils.FromNative(balance.Native, chain.Decimals())
		balance.FetchedAt = uc.now()
		uc.logger.Warn("chain balance degraded",
			zap.String("chain", string(chain)),
			zap.Int("failed_batches", balance.FailedBatches),
			zap.Error(err))
		return balance
	}

	backend, err := uc.backends.get(chain)
	if err != nil {
		return degrade(err)
	}
	if backend.Balances == nil {
		return degrade(fmt.Errorf("%w: no balance provider for %s", domain.ErrUnsupportedChain, chain))
	}

	deposits, err := uc.ledger.ListEligible(ctx, chain)
	if err != nil {
		return degrade(fmt.Errorf("failed to list deposit addresses: %w", err))
	}

	addresses := dedupeAddresses(deposits)
	balance.Addresses = len(addresses)

	batches := partition(addresses, backend.Balances.BatchSize())
	results := make([]batchResult, len(batches))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uc.maxConcurrency)
	for i, batch := range batches {
		g.Go(func() error {
			results[i] = uc.fetchBatch(gctx, backend.Balances, batch)
			return nil
		})
	}
	_ = g.Wait()

	var errs []string
	for _, r := range results {
		if r.err != nil {
			balance.FailedBatches++
			errs = append(errs, r.err.Error())
			continue
		}
		balance.Native.Add(balance.Native, r.sum)
	}

	if balance.FailedBatches > 0 {
		return degrade(fmt.Errorf("%d of %d batches failed: %s", balance.FailedBatches, len(batches), strings.Join(errs, "; ")))
	}

	balance.Total = utils.FromNative(balance.Native, chain.Decimals())
	balance.FetchedAt = uc.now()

	if uc.cache != nil {
		if err := uc.cache.Set(ctx, balance); err != nil {
			uc.logger.Warn("failed to cache balance", zap.String("chain", string(chain)), zap.Error(err))
		}
	}

	uc.logger.Debug("chain balance fetched",
		zap.String("chain", string(chain)),
		zap.Int("addresses", balance.Addresses),
		zap.String("total", balance.Total.String()))

	return balance
}

func (uc *BalanceUsecase) fetchBatch(ctx context.Context, provider domain.BalanceProvider, batch []string) batchResult {
	ctx, cancel := context.WithTimeout(ctx, uc.lookupTimeout)
	defer cancel()

	balances, err := provider.Balances(ctx, batch)
	if err != nil {
		return batchResult{err: err}
	}

	sum := new(big.Int)
	for _, address := range batch {
		b, ok := balances[address]
		if !ok || b == nil {
			return batchResult{err: fmt.Errorf("no balance returned for %s", address)}
		}
		if b.Sign() < 0 {
			return batchResult{err: fmt.Errorf("negative balance %s for %s", b, address)}
		}
		sum.Add(sum, b)
	}
	return batchResult{sum: sum}
}

// TotalBalances fetches every requested chain concurrently. A failing chain
// is reported degraded without affecting the others. With no chains given,
// every chain with a backend is fetched.
func (uc *BalanceUsecase) TotalBalances(ctx context.Context, chains ...domain.Chain) *domain.BalanceReport {
	chains = uc.chainsOrAll(chains)

	balances := make([]domain.ChainBalance, len(chains))
	var wg sync.WaitGroup
	for i, chain := range chains {
		wg.Add(1)
		go func() {
			defer wg.Done()
			balances[i] = uc.TotalBalance(ctx, chain)
		}()
	}
	wg.Wait()

	return uc.report(balances)
}

// CachedBalances serves complete balances from the cache and fetches the rest
func (uc *BalanceUsecase) CachedBalances(ctx context.Context, chains ...domain.Chain) *domain.BalanceReport {
	chains = uc.chainsOrAll(chains)
	if uc.cache == nil {
		return uc.TotalBalances(ctx, chains...)
	}

	balances := make([]domain.ChainBalance, len(chains))
	var (
		missing []domain.Chain
		slots   []int
	)
	for i, chain := range chains {
		cached, ok, err := uc.cache.Get(ctx, chain)
		if err != nil {
			uc.logger.Warn("balance cache unavailable", zap.String("chain", string(chain)), zap.Error(err))
		}
		if ok {
			balances[i] = cached
			continue
		}
		missing = append(missing, chain)
		slots = append(slots, i)
	}

	if len(missing) > 0 {
		fresh := uc.TotalBalances(ctx, missing...)
		for j, b := range fresh.Balances {
			balances[slots[j]] = b
		}
	}

	return uc.report(balances)
}

// Invalidate drops a chain's cached balance
func (uc *BalanceUsecase) Invalidate(ctx context.Context, chain domain.Chain) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Invalidate(ctx, chain); err != nil && !errors.Is(err, context.Canceled) {
		uc.logger.Warn("failed to invalidate cached balance", zap.String("chain", string(chain)), zap.Error(err))
	}
}

func (uc *BalanceUsecase) chainsOrAll(chains []domain.Chain) []domain.Chain {
	if len(chains) > 0 {
		return chains
	}
	for _, chain := range domain.AllChains {
		if _, ok := uc.backends[chain]; ok {
			chains = append(chains, chain)
		}
	}
	return chains
}

func (uc *BalanceUsecase) report(balances []domain.ChainBalance) *domain.BalanceReport {
	report := &domain.BalanceReport{
		Balances:    balances,
		Complete:    true,
		GeneratedAt: uc.now(),
	}
	for _, b := range balances {
		if b.Degraded {
			report.Complete = false
		}
	}
	return report
}

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

func dedupeAddresses(deposits []*domain.DepositAddress) []string {
	seen := make(map[string]struct{}, len(deposits))
	addresses := make([]string, 0, len(deposits))
	for _, d := range deposits {
		if _, ok := seen[d.Address]; ok {
			continue
		}
		seen[d.Address] = struct{}{}
		addresses = append(addresses, d.Address)
	}
	return addresses
}

func partition(items []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var batches [][]string
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		batches = append(batches, items[start:end])
	}
	return batches
}
