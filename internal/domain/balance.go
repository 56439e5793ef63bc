package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// ChainBalance is the aggregate custodial balance of one chain.
// Degraded is set whenever any lookup failed, so a zero total is
// never presented as authoritative.
type ChainBalance struct {
	Chain         Chain           `json:"chain"`
	Symbol        string          `json:"symbol"`
	Total         decimal.Decimal `json:"total"`
	Native        *big.Int        `json:"native"`
	Addresses     int             `json:"addresses"`
	FailedBatches int             `json:"failed_batches"`
	Degraded      bool            `json:"degraded"`
	Error         string          `json:"error,omitempty"`
	FetchedAt     time.Time       `json:"fetched_at"`
}

// BalanceReport aggregates several chains fetched in one call
type BalanceReport struct {
	Balances    []ChainBalance `json:"balances"`
	Complete    bool           `json:"complete"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// For returns the balance entry of a chain, if present
func (r *BalanceReport) For(chain Chain) (ChainBalance, bool) {
	for _, b := range r.Balances {
		if b.Chain == chain {
			return b, true
		}
	}
	return ChainBalance{}, false
}
