package core

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

var maxAmount = decimal.NewFromBigInt(new(big.Int).SetUint64(^uint64(0)), 0)

// ParseAmount converts a display amount such as "0.025" into base units.
// Amounts with more than UnitDecimals fractional digits are rejected
// rather than rounded.
func ParseAmount(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: amount %q: %v", ErrValidation, s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("%w: amount %q is negative", ErrValidation, s)
	}
	base := d.Shift(UnitDecimals)
	if !base.Equal(base.Truncate(0)) {
		return 0, fmt.Errorf("%w: amount %q has more than %d decimals", ErrValidation, s, UnitDecimals)
	}
	if base.GreaterThan(maxAmount) {
		return 0, fmt.Errorf("%w: amount %q overflows", ErrValidation, s)
	}
	return base.BigInt().Uint64(), nil
}

// FormatAmount renders base units as a display amount.
func FormatAmount(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), -UnitDecimals).String()
}
