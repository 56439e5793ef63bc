// internal/chains/bitcoin/sweep.go
package bitcoin

import (
	"fmt"

	"crypto-collector/internal/domain"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// P2PKH sizing heuristic, in vbytes
const (
	P2PKHInputSize  = 148
	P2PKHOutputSize = 34
	TxOverheadSize  = 10

	// DustLimit is the smallest P2PKH output relayed by default policy
	DustLimit = 546

	// MinRelayFeeRate is the default minimum relay fee, 1 sat/vB
	MinRelayFeeRate domain.FeeRate = 1000
)

// EstimateVSize returns inputs*148 + outputVSize + 10
func EstimateVSize(inputs int, outputVSize int64) int64 {
	return int64(inputs)*P2PKHInputSize + outputVSize + TxOverheadSize
}

// OutputVSize sizes a single output paying destination: value, script
// length and script. A P2PKH destination is 34 vB, P2TR and P2WSH 43 vB.
func OutputVSize(params *chaincfg.Params, destination string) (int64, error) {
	addr, err := btcutil.DecodeAddress(destination, params)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidAddress, err)
	}

	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return 0, fmt.Errorf("failed to create script: %w", err)
	}

	return 8 + 1 + int64(len(script)), nil
}

// SweepSource is one deposit address contributing to a sweep
type SweepSource struct {
	Account *domain.DerivedAccount
	UTXOs   []domain.UTXO
}

func (s SweepSource) value() int64 {
	var total int64
	for _, u := range s.UTXOs {
		total += u.Value
	}
	return total
}

// SweepPlan is the outcome of fee planning for one consolidated sweep.
// Included sources carry only the UTXOs that will be spent.
type SweepPlan struct {
	Included    []SweepSource
	FeeExceeds  []SweepSource
	FeeRate     domain.FeeRate
	InputCount  int
	InputValue  int64
	VSize       int64
	Fee         int64
	OutputValue int64
}

// Viable reports whether the plan pays a positive, relayable amount
func (p *SweepPlan) Viable() bool {
	return len(p.Included) > 0 && p.OutputValue >= DustLimit
}

// PlanSweep spends every UTXO worth more than the fee of its own input into
// one output of outputVSize vbytes. Sources left with nothing worth spending
// land in FeeExceeds; when the whole transaction cannot pay its fee every
// source does. Rates below MinRelayFeeRate are raised to it.
func PlanSweep(sources []SweepSource, feeRate domain.FeeRate, outputVSize int64) SweepPlan {
	if feeRate < MinRelayFeeRate {
		feeRate = MinRelayFeeRate
	}

	plan := SweepPlan{FeeRate: feeRate}

	marginal := feeRate.FeeFor(P2PKHInputSize)

	for _, source := range sources {
		spendable := make([]domain.UTXO, 0, len(source.UTXOs))
		for _, u := range source.UTXOs {
			if u.Value > marginal {
				spendable = append(spendable, u)
			}
		}

		if len(spendable) == 0 {
			plan.FeeExceeds = append(plan.FeeExceeds, source)
			continue
		}

		plan.Included = append(plan.Included, SweepSource{Account: source.Account, UTXOs: spendable})
		plan.InputCount += len(spendable)
	}

	if plan.InputCount == 0 {
		return plan
	}

	for _, source := range plan.Included {
		plan.InputValue += source.value()
	}

	plan.VSize = EstimateVSize(plan.InputCount, outputVSize)
	plan.Fee = feeRate.FeeFor(plan.VSize)
	plan.OutputValue = plan.InputValue - plan.Fee

	if plan.InputValue <= plan.Fee || plan.OutputValue < DustLimit {
		plan.FeeExceeds = append(plan.FeeExceeds, plan.Included...)
		plan.Included = nil
		plan.OutputValue = 0
	}

	return plan
}

// BuildSweep signs and validates the transaction described by a viable plan
func BuildSweep(params *chaincfg.Params, plan SweepPlan, destination string) (*TransactionBuilder, error) {
	if !plan.Viable() {
		return nil, fmt.Errorf("%w: sweep output %d below dust limit", domain.ErrInvalidAmount, plan.OutputValue)
	}
	if plan.Fee <= 0 {
		return nil, fmt.Errorf("%w: sweep fee %d", domain.ErrInvalidAmount, plan.Fee)
	}

	tb := NewTransactionBuilder(params)

	for _, source := range plan.Included {
		for _, utxo := range source.UTXOs {
			if err := tb.AddInput(utxo, source.Account); err != nil {
				return nil, fmt.Errorf("failed to add input %s:%d: %w", utxo.TxID, utxo.Vout, err)
			}
		}
	}

	if err := tb.AddOutput(destination, plan.OutputValue); err != nil {
		return nil, err
	}

	if err := tb.Sign(); err != nil {
		return nil, err
	}

	if err := tb.Validate(); err != nil {
		return nil, err
	}

	if tb.Fee() != plan.Fee {
		return nil, fmt.Errorf("value mismatch: inputs %d, outputs %d, fee %d", tb.InputValue(), tb.OutputValue(), plan.Fee)
	}

	return tb, nil
}
