package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"crypto-collector/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBuild(chain domain.Chain) BuildFunc {
	return func(index uint32) (*domain.DepositAddress, error) {
		return &domain.DepositAddress{
			Address:        fmt.Sprintf("%s-addr-%d", chain, index),
			ExpectedAmount: "0.00200000",
			FiatAmountUSD:  "100.00",
			PriceUSD:       "50000",
		}, nil
	}
}

// runLedgerContract exercises behaviour every DepositLedger must share
func runLedgerContract(t *testing.T, newLedger func(t *testing.T) DepositLedger) {
	ctx := context.Background()

	t.Run("indices are dense per chain", func(t *testing.T) {
		ledger := newLedger(t)

		for i := 0; i < 3; i++ {
			d, err := ledger.Issue(ctx, domain.ChainBitcoin, fmt.Sprintf("order-%d", i), fakeBuild(domain.ChainBitcoin))
			require.NoError(t, err)
			assert.Equal(t, uint32(i), d.DepositIndex)
			assert.NotEmpty(t, d.ID)
			assert.False(t, d.Paid)
			assert.False(t, d.Withdrawn)
		}

		// other chains keep their own sequence
		d, err := ledger.Issue(ctx, domain.ChainEthereum, "order-0", fakeBuild(domain.ChainEthereum))
		require.NoError(t, err)
		assert.Equal(t, uint32(0), d.DepositIndex)
	})

	t.Run("duplicate order consumes no index", func(t *testing.T) {
		ledger := newLedger(t)

		_, err := ledger.Issue(ctx, domain.ChainSolana, "order-a", fakeBuild(domain.ChainSolana))
		require.NoError(t, err)

		_, err = ledger.Issue(ctx, domain.ChainSolana, "order-a", fakeBuild(domain.ChainSolana))
		assert.ErrorIs(t, err, domain.ErrOrderAlreadyIssued)

		d, err := ledger.Issue(ctx, domain.ChainSolana, "order-b", fakeBuild(domain.ChainSolana))
		require.NoError(t, err)
		assert.Equal(t, uint32(1), d.DepositIndex)
	})

	t.Run("build failure persists nothing", func(t *testing.T) {
		ledger := newLedger(t)
		boom := errors.New("boom")

		_, err := ledger.Issue(ctx, domain.ChainLitecoin, "order-x", func(uint32) (*domain.DepositAddress, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)

		_, err = ledger.GetByOrder(ctx, "order-x", domain.ChainLitecoin)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		d, err := ledger.Issue(ctx, domain.ChainLitecoin, "order-x", fakeBuild(domain.ChainLitecoin))
		require.NoError(t, err)
		assert.Equal(t, uint32(0), d.DepositIndex)
	})

	t.Run("concurrent issuance never repeats an index", func(t *testing.T) {
		ledger := newLedger(t)
		const n = 25

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			indices = make(map[uint32]string)
			errs    []error
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				d, err := ledger.Issue(ctx, domain.ChainBitcoin, fmt.Sprintf("c-%d", i), fakeBuild(domain.ChainBitcoin))
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				indices[d.DepositIndex] = d.Address
			}(i)
		}
		wg.Wait()

		require.Empty(t, errs)
		require.Len(t, indices, n)
		for i := uint32(0); i < n; i++ {
			assert.Contains(t, indices, i)
		}
	})

	t.Run("lookups", func(t *testing.T) {
		ledger := newLedger(t)

		d, err := ledger.Issue(ctx, domain.ChainEthereum, "order-1", fakeBuild(domain.ChainEthereum))
		require.NoError(t, err)

		byID, err := ledger.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, d.Address, byID.Address)
		assert.Equal(t, "0.00200000", byID.ExpectedAmount)

		byAddr, err := ledger.GetByAddress(ctx, domain.ChainEthereum, d.Address)
		require.NoError(t, err)
		assert.Equal(t, d.ID, byAddr.ID)

		_, err = ledger.GetByOrder(ctx, "order-1", domain.ChainBitcoin)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = ledger.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("paid and withdrawn transitions", func(t *testing.T) {
		ledger := newLedger(t)

		var ids []string
		for i := 0; i < 3; i++ {
			d, err := ledger.Issue(ctx, domain.ChainBitcoin, fmt.Sprintf("o-%d", i), fakeBuild(domain.ChainBitcoin))
			require.NoError(t, err)
			ids = append(ids, d.ID)
		}

		eligible, err := ledger.ListEligible(ctx, domain.ChainBitcoin)
		require.NoError(t, err)
		assert.Empty(t, eligible)

		require.NoError(t, ledger.MarkPaid(ctx, ids[0], "pay-0"))
		require.NoError(t, ledger.MarkPaid(ctx, ids[2], ""))
		assert.ErrorIs(t, ledger.MarkPaid(ctx, ids[0], "pay-0"), domain.ErrAlreadyPaid)

		eligible, err = ledger.ListEligible(ctx, domain.ChainBitcoin)
		require.NoError(t, err)
		require.Len(t, eligible, 2)
		assert.Equal(t, ids[0], eligible[0].ID)
		assert.Equal(t, ids[2], eligible[1].ID)
		require.NotNil(t, eligible[0].PaymentTxHash)
		assert.Equal(t, "pay-0", *eligible[0].PaymentTxHash)

		sweepTx := "sweep-tx"
		require.NoError(t, ledger.MarkWithdrawn(ctx, []string{ids[0], ids[2]}, domain.SweepOutcomeSwept, &sweepTx))

		// all or nothing
		err = ledger.MarkWithdrawn(ctx, []string{ids[1], ids[0]}, domain.SweepOutcomeEmpty, nil)
		assert.ErrorIs(t, err, domain.ErrAlreadyWithdrawn)
		untouched, err := ledger.GetByID(ctx, ids[1])
		require.NoError(t, err)
		assert.False(t, untouched.Withdrawn)

		swept, err := ledger.GetByID(ctx, ids[2])
		require.NoError(t, err)
		assert.True(t, swept.Withdrawn)
		require.NotNil(t, swept.SweepTxHash)
		assert.Equal(t, sweepTx, *swept.SweepTxHash)
		require.NotNil(t, swept.SweepOutcome)
		assert.Equal(t, domain.SweepOutcomeSwept, *swept.SweepOutcome)
		assert.NotNil(t, swept.WithdrawnAt)

		eligible, err = ledger.ListEligible(ctx, domain.ChainBitcoin)
		require.NoError(t, err)
		assert.Empty(t, eligible)

		all, err := ledger.ListByChain(ctx, domain.ChainBitcoin)
		require.NoError(t, err)
		assert.Len(t, all, 3)
		assert.Equal(t, uint32(2), all[0].DepositIndex)
	})

	t.Run("withdrawal arguments", func(t *testing.T) {
		ledger := newLedger(t)
		d, err := ledger.Issue(ctx, domain.ChainBitcoin, "o", fakeBuild(domain.ChainBitcoin))
		require.NoError(t, err)

		tx := "abc"
		assert.ErrorIs(t, ledger.MarkWithdrawn(ctx, nil, domain.SweepOutcomeEmpty, nil), errNoIDs)
		assert.ErrorIs(t, ledger.MarkWithdrawn(ctx, []string{d.ID}, domain.SweepOutcomeSwept, nil), errMissingSweepTx)
		assert.ErrorIs(t, ledger.MarkWithdrawn(ctx, []string{d.ID}, domain.SweepOutcomeEmpty, &tx), errUnexpectedSweepTx)
		assert.ErrorIs(t, ledger.MarkWithdrawn(ctx, []string{d.ID}, "burned", nil), errUnknownOutcome)
	})

	t.Run("sweep lock is exclusive per chain", func(t *testing.T) {
		ledger := newLedger(t)

		release, err := ledger.LockSweep(ctx, domain.ChainBitcoin)
		require.NoError(t, err)

		_, err = ledger.LockSweep(ctx, domain.ChainBitcoin)
		assert.ErrorIs(t, err, domain.ErrSweepInProgress)

		other, err := ledger.LockSweep(ctx, domain.ChainEthereum)
		require.NoError(t, err)
		other()

		release()
		release()

		again, err := ledger.LockSweep(ctx, domain.ChainBitcoin)
		require.NoError(t, err)
		again()
	})
}
