// internal/domain/deposit.go
package domain

import (
	"time"
)

// SweepOutcome records how a withdrawn row was retired
type SweepOutcome string

const (
	// SweepOutcomeSwept means funds left the address in SweepTxHash
	SweepOutcomeSwept SweepOutcome = "swept"
	// SweepOutcomeEmpty means the address held nothing when it was retired
	SweepOutcomeEmpty SweepOutcome = "empty"
)

// DepositAddress is one derived, single-use deposit address.
// Rows are never deleted; they are the custody audit trail.
type DepositAddress struct {
	ID           string `json:"id"`
	Chain        Chain  `json:"chain"`
	DepositIndex uint32 `json:"deposit_index"`
	Address      string `json:"address"`
	OrderID      string `json:"order_id"`

	// ExpectedAmount is the quoted crypto amount, fixed at issuance
	ExpectedAmount string `json:"expected_amount"`
	FiatAmountUSD  string `json:"fiat_amount_usd"`
	PriceUSD       string `json:"price_usd"`

	// Set by the external confirmation listener
	Paid          bool       `json:"paid"`
	PaymentTxHash *string    `json:"payment_tx_hash,omitempty"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`

	// Set by the sweep engine
	Withdrawn    bool          `json:"withdrawn"`
	SweepTxHash  *string       `json:"sweep_tx_hash,omitempty"`
	SweepOutcome *SweepOutcome `json:"sweep_outcome,omitempty"`
	WithdrawnAt  *time.Time    `json:"withdrawn_at,omitempty"`

	// WebhookID is an external address-subscription handle
	WebhookID *string `json:"webhook_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Eligible reports whether the row takes part in balance aggregation and sweeping
func (d *DepositAddress) Eligible() bool {
	return d.Paid && !d.Withdrawn
}

// Invoice is what the checkout flow shows the customer
type Invoice struct {
	Deposit    *DepositAddress `json:"deposit"`
	Symbol     string          `json:"symbol"`
	PaymentURI string          `json:"payment_uri"`
}
