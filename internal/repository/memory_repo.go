package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"crypto-collector/internal/domain"

	"github.com/google/uuid"
)

// MemoryLedger is an in-process DepositLedger used by tests and dry runs.
// Issue holds the write lock for the whole reservation, so indices per
// chain are dense and unique.
type MemoryLedger struct {
	mu       sync.RWMutex
	rows     map[string]*domain.DepositAddress
	nextIdx  map[domain.Chain]uint32
	sweeping map[domain.Chain]bool
	now      func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		rows:     make(map[string]*domain.DepositAddress),
		nextIdx:  make(map[domain.Chain]uint32),
		sweeping: make(map[domain.Chain]bool),
		now:      time.Now,
	}
}

var _ DepositLedger = (*MemoryLedger)(nil)

func (l *MemoryLedger) Issue(ctx context.Context, chain domain.Chain, orderID string, build BuildFunc) (*domain.DepositAddress, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, row := range l.rows {
		if row.Chain == chain && row.OrderID == orderID {
			return nil, fmt.Errorf("%w: order %s on %s", domain.ErrOrderAlreadyIssued, orderID, chain)
		}
	}

	next := l.nextIdx[chain]
	if next > domain.MaxDepositIndex {
		return nil, fmt.Errorf("%w: %s index space exhausted", domain.ErrInvalidIndex, chain)
	}

	deposit, err := build(next)
	if err != nil {
		return nil, err
	}

	for _, row := range l.rows {
		if row.Chain == chain && row.Address == deposit.Address {
			return nil, fmt.Errorf("deposit address collision on %s: %s", chain, deposit.Address)
		}
	}

	if deposit.ID == "" {
		deposit.ID = uuid.New().String()
	}
	deposit.Chain = chain
	deposit.DepositIndex = next
	deposit.OrderID = orderID
	deposit.CreatedAt = l.now()
	deposit.UpdatedAt = deposit.CreatedAt

	l.rows[deposit.ID] = deposit
	l.nextIdx[chain] = next + 1

	return clone(deposit), nil
}

func (l *MemoryLedger) GetByID(ctx context.Context, id string) (*domain.DepositAddress, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	row, ok := l.rows[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(row), nil
}

func (l *MemoryLedger) GetByOrder(ctx context.Context, orderID string, chain domain.Chain) (*domain.DepositAddress, error) {
	return l.find(func(d *domain.DepositAddress) bool {
		return d.OrderID == orderID && d.Chain == chain
	})
}

func (l *MemoryLedger) GetByAddress(ctx context.Context, chain domain.Chain, address string) (*domain.DepositAddress, error) {
	return l.find(func(d *domain.DepositAddress) bool {
		return d.Chain == chain && d.Address == address
	})
}

func (l *MemoryLedger) ListEligible(ctx context.Context, chain domain.Chain) ([]*domain.DepositAddress, error) {
	rows := l.filter(func(d *domain.DepositAddress) bool {
		return d.Chain == chain && d.Eligible()
	})
	sort.Slice(rows, func(i, j int) bool { return rows[i].DepositIndex < rows[j].DepositIndex })
	return rows, nil
}

func (l *MemoryLedger) ListByChain(ctx context.Context, chain domain.Chain) ([]*domain.DepositAddress, error) {
	rows := l.filter(func(d *domain.DepositAddress) bool { return d.Chain == chain })
	sort.Slice(rows, func(i, j int) bool { return rows[i].DepositIndex > rows[j].DepositIndex })
	return rows, nil
}

func (l *MemoryLedger) LockSweep(ctx context.Context, chain domain.Chain) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sweeping[chain] {
		return nil, fmt.Errorf("%w: %s", domain.ErrSweepInProgress, chain)
	}
	l.sweeping[chain] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.sweeping, chain)
			l.mu.Unlock()
		})
	}, nil
}

func (l *MemoryLedger) MarkPaid(ctx context.Context, id, paymentTxHash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row, ok := l.rows[id]
	if !ok {
		return domain.ErrNotFound
	}
	if row.Paid {
		return domain.ErrAlreadyPaid
	}

	now := l.now()
	row.Paid = true
	row.PaidAt = &now
	row.UpdatedAt = now
	if paymentTxHash != "" {
		h := paymentTxHash
		row.PaymentTxHash = &h
	}
	return nil
}

func (l *MemoryLedger) MarkWithdrawn(ctx context.Context, ids []string, outcome domain.SweepOutcome, sweepTxHash *string) error {
	if err := validateWithdrawal(ids, outcome, sweepTxHash); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		row, ok := l.rows[id]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
		if _, dup := seen[id]; dup || row.Withdrawn {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyWithdrawn, id)
		}
		seen[id] = struct{}{}
	}

	now := l.now()
	for _, id := range ids {
		row := l.rows[id]
		o := outcome
		row.Withdrawn = true
		row.SweepOutcome = &o
		row.WithdrawnAt = &now
		row.UpdatedAt = now
		if sweepTxHash != nil {
			h := *sweepTxHash
			row.SweepTxHash = &h
		}
	}
	return nil
}

func (l *MemoryLedger) find(match func(*domain.DepositAddress) bool) (*domain.DepositAddress, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, row := range l.rows {
		if match(row) {
			return clone(row), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (l *MemoryLedger) filter(match func(*domain.DepositAddress) bool) []*domain.DepositAddress {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*domain.DepositAddress
	for _, row := range l.rows {
		if match(row) {
			out = append(out, clone(row))
		}
	}
	return out
}

func clone(d *domain.DepositAddress) *domain.DepositAddress {
	c := *d
	return &c
}
