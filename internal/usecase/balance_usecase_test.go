package usecase

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"crypto-collector/internal/cache"
	"crypto-collector/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func weiFromString(t *testing.T, s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}

func TestBalanceUsecase_DegradationIsolation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	btc1 := h.issuePaid(t, domain.ChainBitcoin, "b1")
	btc2 := h.issuePaid(t, domain.ChainBitcoin, "b2")
	ltc := h.issuePaid(t, domain.ChainLitecoin, "l1")
	eth := h.issuePaid(t, domain.ChainEthereum, "e1")
	sol := h.issuePaid(t, domain.ChainSolana, "s1")

	h.balances[domain.ChainBitcoin].balances[btc1.Address] = big.NewInt(10_000)
	h.balances[domain.ChainBitcoin].balances[btc2.Address] = big.NewInt(25_000)
	h.balances[domain.ChainLitecoin].balances[ltc.Address] = big.NewInt(100_000_000)
	h.balances[domain.ChainEthereum].balances[eth.Address] = weiFromString(t, "1500000000000000000")
	h.balances[domain.ChainSolana].balances[sol.Address] = big.NewInt(2_000_000_000)
	h.balances[domain.ChainSolana].err = errors.New("rpc unavailable")

	uc := NewBalanceUsecase(h.ledger, h.backends, nil, time.Second, zaptest.NewLogger(t))
	report := uc.TotalBalances(ctx)

	require.Len(t, report.Balances, 4)
	assert.False(t, report.Complete)

	b, ok := report.For(domain.ChainBitcoin)
	require.True(t, ok)
	assert.False(t, b.Degraded)
	assert.Equal(t, "0.00035", b.Total.String())
	assert.Equal(t, 2, b.Addresses)

	b, _ = report.For(domain.ChainLitecoin)
	assert.False(t, b.Degraded)
	assert.Equal(t, "1", b.Total.String())

	b, _ = report.For(domain.ChainEthereum)
	assert.False(t, b.Degraded)
	assert.Equal(t, "1.5", b.Total.String())

	b, _ = report.For(domain.ChainSolana)
	assert.True(t, b.Degraded)
	assert.True(t, b.Total.IsZero())
	assert.Contains(t, b.Error, "rpc unavailable")
}

func TestBalanceUsecase_OnlyEligibleAndBatched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	provider := h.balances[domain.ChainBitcoin]
	provider.batchSize = 2

	var paid []*domain.DepositAddress
	for _, order := range []string{"a", "b", "c", "d", "e"} {
		d := h.issuePaid(t, domain.ChainBitcoin, order)
		provider.balances[d.Address] = big.NewInt(1_000)
		paid = append(paid, d)
	}
	unpaid := h.issue(t, domain.ChainBitcoin, "unpaid", nil)
	provider.balances[unpaid.Address] = big.NewInt(999_999)

	tx := "sweep"
	require.NoError(t, h.ledger.MarkWithdrawn(ctx, []string{paid[4].ID}, domain.SweepOutcomeSwept, &tx))

	uc := NewBalanceUsecase(h.ledger, h.backends, nil, time.Second, zaptest.NewLogger(t))
	b := uc.TotalBalance(ctx, domain.ChainBitcoin)

	assert.False(t, b.Degraded)
	assert.Equal(t, 4, b.Addresses)
	assert.Equal(t, int64(4_000), b.Native.Int64())
	assert.Equal(t, 2, provider.callCount())
	for _, call := range provider.calls {
		assert.LessOrEqual(t, len(call), 2)
		assert.NotContains(t, call, unpaid.Address)
	}
}

func TestBalanceUsecase_PartialFailure(t *testing.T) {
	h := newHarness(t)
	provider := h.balances[domain.ChainEthereum]

	a := h.issuePaid(t, domain.ChainEthereum, "a")
	b := h.issuePaid(t, domain.ChainEthereum, "b")
	provider.balances[a.Address] = big.NewInt(7)
	provider.balances[b.Address] = big.NewInt(11)
	provider.failFor[b.Address] = true

	uc := NewBalanceUsecase(h.ledger, h.backends, nil, time.Second, zaptest.NewLogger(t))
	balance := uc.TotalBalance(context.Background(), domain.ChainEthereum)

	assert.True(t, balance.Degraded)
	assert.Equal(t, 1, balance.FailedBatches)
	assert.Equal(t, int64(7), balance.Native.Int64())
}

func TestBalanceUsecase_NoAddressesIsComplete(t *testing.T) {
	h := newHarness(t)
	uc := NewBalanceUsecase(h.ledger, h.backends, nil, time.Second, zaptest.NewLogger(t))

	b := uc.TotalBalance(context.Background(), domain.ChainLitecoin)
	assert.False(t, b.Degraded)
	assert.True(t, b.Total.IsZero())

	delete(h.backends, domain.ChainLitecoin)
	b = uc.TotalBalance(context.Background(), domain.ChainLitecoin)
	assert.True(t, b.Degraded)
}

func TestBalanceUsecase_Cache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	balanceCache := cache.NewBalanceCache(client, time.Minute, zaptest.NewLogger(t))

	d := h.issuePaid(t, domain.ChainBitcoin, "o1")
	h.balances[domain.ChainBitcoin].balances[d.Address] = big.NewInt(5_000)
	h.balances[domain.ChainSolana].err = errors.New("down")
	h.issuePaid(t, domain.ChainSolana, "s1")

	uc := NewBalanceUsecase(h.ledger, h.backends, balanceCache, time.Second, zaptest.NewLogger(t))

	first := uc.CachedBalances(ctx, domain.ChainBitcoin, domain.ChainSolana)
	assert.False(t, first.Complete)
	btcCalls := h.balances[domain.ChainBitcoin].callCount()
	solCalls := h.balances[domain.ChainSolana].callCount()

	second := uc.CachedBalances(ctx, domain.ChainBitcoin, domain.ChainSolana)
	assert.Equal(t, btcCalls, h.balances[domain.ChainBitcoin].callCount(), "complete balance served from cache")
	assert.Greater(t, h.balances[domain.ChainSolana].callCount(), solCalls, "degraded balance is never cached")

	b, ok := second.For(domain.ChainBitcoin)
	require.True(t, ok)
	assert.Equal(t, "0.00005", b.Total.String())

	uc.Invalidate(ctx, domain.ChainBitcoin)
	uc.CachedBalances(ctx, domain.ChainBitcoin)
	assert.Greater(t, h.balances[domain.ChainBitcoin].callCount(), btcCalls)
}

func TestPartition(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}
	assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, partition(items, 2))
	assert.Len(t, partition(items, 0), 5)
	assert.Empty(t, partition(nil, 50))
}

func TestDedupeAddresses(t *testing.T) {
	rows := []*domain.DepositAddress{{Address: "x"}, {Address: "y"}, {Address: "x"}}
	assert.Equal(t, []string{"x", "y"}, dedupeAddresses(rows))
}
