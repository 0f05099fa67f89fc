package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Balances and amounts carry at most two fractional digits. Every add or
// subtract is rounded straight back to that scale so repeated operations
// cannot drift at the cent level.

// Round2 rounds a monetary value to two decimal places, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// ValidateAmount rejects amounts that are not positive or carry more than
// two fractional digits.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidOperation)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("%w: amount must have at most two decimal places", ErrInvalidOperation)
	}
	return nil
}
