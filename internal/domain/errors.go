package domain

import (
	"errors"
	"fmt"
)

// Startup
var (
	ErrSeedMissing = errors.New("master seed is not configured")
	ErrSeedInvalid = errors.New("master seed is malformed")
)

// Derivation / validation
var (
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrInvalidIndex     = errors.New("deposit index out of range")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// Pricing
var (
	ErrPriceUnavailable = errors.New("price unavailable")
)

// Ledger
var (
	ErrNotFound           = errors.New("deposit address not found")
	ErrOrderAlreadyIssued = errors.New("order already has a deposit address on this chain")
	ErrAlreadyWithdrawn   = errors.New("deposit address already withdrawn")
	ErrAlreadyPaid        = errors.New("deposit address already marked paid")
)

// Sweeping
var (
	ErrSweepInProgress = errors.New("sweep already running for chain")
)

// DerivationError reports a failure deriving one (chain, index) pair
type DerivationError struct {
	Chain Chain
	Index uint32
	Err   error
}

func (e *DerivationError) Error() string {
	return fmt.Sprintf("derive %s/%d: %v", e.Chain, e.Index, e.Err)
}

func (e *DerivationError) Unwrap() error {
	return e.Err
}
