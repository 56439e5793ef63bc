// internal/repository/interface_repo.go
package repository

import (
	"context"

	"crypto-collector/internal/domain"
)

// BuildFunc turns a reserved deposit index into the row to persist.
// It runs inside the index critical section and must not block on I/O.
type BuildFunc func(index uint32) (*domain.DepositAddress, error)

// DepositLedger is the persisted record of every derived deposit address
type DepositLedger interface {
	// Issue reserves max(index)+1 for the chain, builds the row and inserts it
	// atomically. A second row for the same (order, chain) fails with
	// ErrOrderAlreadyIssued and consumes no index.
	Issue(ctx context.Context, chain domain.Chain, orderID string, build BuildFunc) (*domain.DepositAddress, error)

	GetByID(ctx context.Context, id string) (*domain.DepositAddress, error)
	GetByOrder(ctx context.Context, orderID string, chain domain.Chain) (*domain.DepositAddress, error)
	GetByAddress(ctx context.Context, chain domain.Chain, address string) (*domain.DepositAddress, error)

	// ListEligible returns paid, not withdrawn rows ordered by deposit index
	ListEligible(ctx context.Context, chain domain.Chain) ([]*domain.DepositAddress, error)
	ListByChain(ctx context.Context, chain domain.Chain) ([]*domain.DepositAddress, error)

	// MarkPaid is the confirmation listener's entry point; paid flips once
	MarkPaid(ctx context.Context, id, paymentTxHash string) error

	// MarkWithdrawn retires every id or none. sweepTxHash is required for
	// SweepOutcomeSwept and must be nil for SweepOutcomeEmpty.
	MarkWithdrawn(ctx context.Context, ids []string, outcome domain.SweepOutcome, sweepTxHash *string) error

	// LockSweep takes the chain's sweep lock, shared by every process on the
	// same ledger. It fails with ErrSweepInProgress while another holder has
	// it. release is safe to call more than once.
	LockSweep(ctx context.Context, chain domain.Chain) (release func(), err error)
}

func validateWithdrawal(ids []string, outcome domain.SweepOutcome, sweepTxHash *string) error {
	if len(ids) == 0 {
		return errNoIDs
	}
	switch outcome {
	case domain.SweepOutcomeSwept:
		if sweepTxHash == nil || *sweepTxHash == "" {
			return errMissingSweepTx
		}
	case domain.SweepOutcomeEmpty:
		if sweepTxHash != nil {
			return errUnexpectedSweepTx
		}
	default:
		return errUnknownOutcome
	}
	return nil
}
