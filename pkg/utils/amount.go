package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// FromNative converts an integer amount of the smallest unit to whole coins
func FromNative(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// ToNative converts whole coins to the smallest unit. Amounts with more
// precision than the unit allows are rejected rather than truncated.
func ToNative(amount decimal.Decimal, decimals int32) (*big.Int, error) {
	shifted := amount.Shift(decimals)
	if !shifted.Equal(shifted.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than %d decimals", amount.String(), decimals)
	}
	return shifted.BigInt(), nil
}

// FormatBalance formats a native balance with trailing zeros trimmed
func FormatBalance(balance *big.Int, decimals int32, symbol string) string {
	return fmt.Sprintf("%s %s", FromNative(balance, decimals).String(), symbol)
}

// StringPtr returns pointer to string
func StringPtr(s string) *string {
	return &s
}
