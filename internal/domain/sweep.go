// internal/domain/sweep.go
package domain

import (
	"math/big"
)

// SweepState is the terminal state of one candidate address in a sweep run
type SweepState string

const (
	SweepStateEmpty             SweepState = "EMPTY"
	SweepStateFeeExceedsBalance SweepState = "FEE_EXCEEDS_BALANCE"
	SweepStateSwept             SweepState = "SWEPT"
	SweepStateFailed            SweepState = "FAILED"
)

// UTXO is an unspent output owned by a deposit address
type UTXO struct {
	TxID      string
	Vout      uint32
	Value     int64 // satoshis / litoshis
	Confirmed bool
}

// FeeRate is expressed in satoshis per 1000 virtual bytes so that
// fee arithmetic stays integral.
type FeeRate int64

// FeeRateFromSatPerVByte converts a sat/vB quote, rounding to the nearest sat/kvB
func FeeRateFromSatPerVByte(satPerVB float64) FeeRate {
	if satPerVB <= 0 {
		return 0
	}
	return FeeRate(satPerVB*1000 + 0.5)
}

// FeeFor returns ceil(vsize * rate / 1000)
func (r FeeRate) FeeFor(vsize int64) int64 {
	if r <= 0 || vsize <= 0 {
		return 0
	}
	return (vsize*int64(r) + 999) / 1000
}

// AddressOutcome is the per-address report of a sweep run
type AddressOutcome struct {
	DepositID    string     `json:"deposit_id"`
	OrderID      string     `json:"order_id"`
	Address      string     `json:"address"`
	DepositIndex uint32     `json:"deposit_index"`
	State        SweepState `json:"state"`
	TxID         string     `json:"tx_id,omitempty"`
	Amount       *big.Int   `json:"amount"`        // native units moved (SWEPT) or found (other states)
	Fee          *big.Int   `json:"fee,omitempty"` // share of fee attributable to this address, when known
	Error        string     `json:"error,omitempty"`
}

// SweepResult is reported back to the operator
type SweepResult struct {
	RunID          string           `json:"run_id"`
	Chain          Chain            `json:"chain"`
	Destination    string           `json:"destination"`
	InitiatedCount int              `json:"initiated_count"`
	TransactionIDs []string         `json:"transaction_ids"`
	Outcomes       []AddressOutcome `json:"outcomes"`
}

// Count returns how many outcomes ended in the given state
func (r *SweepResult) Count(state SweepState) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == state {
			n++
		}
	}
	return n
}
