// internal/repository/deposit_repo.go
package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crypto-collector/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger stores deposit addresses in PostgreSQL.
// Index assignment is serialised per chain with a transaction-scoped advisory lock.
type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{pool: pool}
}

var _ DepositLedger = (*PostgresLedger)(nil)

const depositColumns = `
	id::text, chain, deposit_index, address, order_id,
	expected_amount::text, fiat_amount_usd::text, price_usd::text,
	paid, payment_tx_hash, paid_at,
	withdrawn, sweep_tx_hash, sweep_outcome, withdrawn_at,
	webhook_id, created_at, updated_at`

// ============================================================================
// ISSUANCE
// ============================================================================

func (r *PostgresLedger) Issue(ctx context.Context, chain domain.Chain, orderID string, build BuildFunc) (*domain.DepositAddress, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, "deposit_index:"+string(chain)); err != nil {
		return nil, fmt.Errorf("failed to lock %s index: %w", chain, err)
	}

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM deposit_addresses WHERE order_id = $1 AND chain = $2)`,
		orderID, string(chain),
	).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check order: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: order %s on %s", domain.ErrOrderAlreadyIssued, orderID, chain)
	}

	var next int64
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(deposit_index), -1) + 1 FROM deposit_addresses WHERE chain = $1`,
		string(chain),
	).Scan(&next)
	if err != nil {
		return nil, fmt.Errorf("failed to read next index: %w", err)
	}
	if next > int64(domain.MaxDepositIndex) {
		return nil, fmt.Errorf("%w: %s index space exhausted", domain.ErrInvalidIndex, chain)
	}

	deposit, err := build(uint32(next))
	if err != nil {
		return nil, err
	}

	if deposit.ID == "" {
		deposit.ID = uuid.New().String()
	}
	deposit.Chain = chain
	deposit.DepositIndex = uint32(next)
	deposit.OrderID = orderID

	query := `
		INSERT INTO deposit_addresses (
			id, chain, deposit_index, address, order_id,
			expected_amount, fiat_amount_usd, price_usd, webhook_id
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8::numeric, $9)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRow(ctx, query,
		deposit.ID,
		string(deposit.Chain),
		int64(deposit.DepositIndex),
		deposit.Address,
		deposit.OrderID,
		deposit.ExpectedAmount,
		deposit.FiatAmountUSD,
		deposit.PriceUSD,
		deposit.WebhookID,
	).Scan(&deposit.CreatedAt, &deposit.UpdatedAt)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == "deposit_addresses_order_chain_key" {
				return nil, fmt.Errorf("%w: order %s on %s", domain.ErrOrderAlreadyIssued, orderID, chain)
			}
			return nil, fmt.Errorf("deposit address collision (%s): %w", constraint, err)
		}
		return nil, fmt.Errorf("failed to insert deposit address: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return deposit, nil
}

// ============================================================================
// QUERIES
// ============================================================================

func (r *PostgresLedger) GetByID(ctx context.Context, id string) (*domain.DepositAddress, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return r.getOne(ctx, `WHERE id = $1`, id)
}

func (r *PostgresLedger) GetByOrder(ctx context.Context, orderID string, chain domain.Chain) (*domain.DepositAddress, error) {
	return r.getOne(ctx, `WHERE order_id = $1 AND chain = $2`, orderID, string(chain))
}

func (r *PostgresLedger) GetByAddress(ctx context.Context, chain domain.Chain, address string) (*domain.DepositAddress, error) {
	return r.getOne(ctx, `WHERE chain = $1 AND address = $2`, string(chain), address)
}

func (r *PostgresLedger) ListEligible(ctx context.Context, chain domain.Chain) ([]*domain.DepositAddress, error) {
	return r.list(ctx, `WHERE chain = $1 AND paid AND NOT withdrawn ORDER BY deposit_index ASC`, string(chain))
}

func (r *PostgresLedger) ListByChain(ctx context.Context, chain domain.Chain) ([]*domain.DepositAddress, error) {
	return r.list(ctx, `WHERE chain = $1 ORDER BY deposit_index DESC`, string(chain))
}

func (r *PostgresLedger) getOne(ctx context.Context, where string, args ...interface{}) (*domain.DepositAddress, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+depositColumns+` FROM deposit_addresses `+where, args...)

	deposit, err := scanDeposit(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return deposit, nil
}

func (r *PostgresLedger) list(ctx context.Context, where string, args ...interface{}) ([]*domain.DepositAddress, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+depositColumns+` FROM deposit_addresses `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query deposit addresses: %w", err)
	}
	defer rows.Close()

	var deposits []*domain.DepositAddress
	for rows.Next() {
		deposit, err := scanDeposit(rows)
		if err != nil {
			return nil, err
		}
		deposits = append(deposits, deposit)
	}

	return deposits, rows.Err()
}

// ============================================================================
// STATE TRANSITIONS
// ============================================================================

func (r *PostgresLedger) MarkPaid(ctx context.Context, id, paymentTxHash string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE deposit_addresses
		SET paid = TRUE, payment_tx_hash = NULLIF($2, ''), paid_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND NOT paid
	`, id, paymentTxHash)
	if err != nil {
		return fmt.Errorf("failed to mark paid: %w", err)
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing.Paid {
		return domain.ErrAlreadyPaid
	}
	return fmt.Errorf("mark paid affected no rows for %s", id)
}

func (r *PostgresLedger) MarkWithdrawn(ctx context.Context, ids []string, outcome domain.SweepOutcome, sweepTxHash *string) error {
	if err := validateWithdrawal(ids, outcome, sweepTxHash); err != nil {
		return err
	}
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		}
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE deposit_addresses
		SET withdrawn = TRUE, sweep_outcome = $2, sweep_tx_hash = $3, withdrawn_at = NOW(), updated_at = NOW()
		WHERE id = ANY($1::uuid[]) AND NOT withdrawn
	`, ids, string(outcome), sweepTxHash)
	if err != nil {
		return fmt.Errorf("failed to mark withdrawn: %w", err)
	}

	if int(tag.RowsAffected()) != len(ids) {
		return fmt.Errorf("%w: %d of %d rows updatable", domain.ErrAlreadyWithdrawn, tag.RowsAffected(), len(ids))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	return nil
}

// ============================================================================
// SWEEP LOCK
// ============================================================================

// LockSweep holds a session advisory lock on a dedicated pooled connection
// until release. The connection is discarded if the unlock fails, which ends
// the session and drops the lock with it.
func (r *PostgresLedger) LockSweep(ctx context.Context, chain domain.Chain) (func(), error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	key := "sweep:" + string(chain)

	var locked bool
	if err := conn.QueryRow(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, key).Scan(&locked); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to lock %s sweep: %w", chain, err)
	}
	if !locked {
		conn.Release()
		return nil, fmt.Errorf("%w: %s", domain.ErrSweepInProgress, chain)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var unlocked bool
			err := conn.QueryRow(unlockCtx, `SELECT pg_advisory_unlock(hashtext($1))`, key).Scan(&unlocked)
			if err != nil || !unlocked {
				_ = conn.Conn().Close(unlockCtx)
			}
			conn.Release()
		})
	}

	return release, nil
}

// ============================================================================
// HELPER FUNCTIONS
// ============================================================================

// Scanner interface for both Row and Rows
type Scanner interface {
	Scan(dest ...interface{}) error
}

func scanDeposit(scanner Scanner) (*domain.DepositAddress, error) {
	deposit := &domain.DepositAddress{}
	var (
		chain       string
		index       int64
		outcome     *string
		paidAt      *time.Time
		withdrawnAt *time.Time
	)

	err := scanner.Scan(
		&deposit.ID,
		&chain,
		&index,
		&deposit.Address,
		&deposit.OrderID,
		&deposit.ExpectedAmount,
		&deposit.FiatAmountUSD,
		&deposit.PriceUSD,
		&deposit.Paid,
		&deposit.PaymentTxHash,
		&paidAt,
		&deposit.Withdrawn,
		&deposit.SweepTxHash,
		&outcome,
		&withdrawnAt,
		&deposit.WebhookID,
		&deposit.CreatedAt,
		&deposit.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan deposit address: %w", err)
	}

	deposit.Chain = domain.Chain(chain)
	deposit.DepositIndex = uint32(index)
	deposit.PaidAt = paidAt
	deposit.WithdrawnAt = withdrawnAt
	if outcome != nil {
		o := domain.SweepOutcome(*outcome)
		deposit.SweepOutcome = &o
	}

	return deposit, nil
}
