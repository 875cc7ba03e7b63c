// Package amount converts between human decimal strings and base-unit
// integers for tokens with heterogeneous decimal precision.
package amount

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Parse converts a human-readable decimal string into base units.
// It rejects empty input, negative values, and values with more
// fractional digits than the token carries.
func Parse(value string, decimals int) (*big.Int, error) {
	s := strings.TrimSpace(value)
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", value, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("negative amount %q", value)
	}
	if d.Exponent() < int32(-decimals) {
		return nil, fmt.Errorf("amount %q exceeds %d decimals", value, decimals)
	}
	return d.Shift(int32(decimals)).BigInt(), nil
}

// Format renders base units as a human-readable decimal string,
// truncated (not rounded) to maxDigits fractional digits.
func Format(value *big.Int, decimals, maxDigits int) string {
	if value == nil {
		return ""
	}
	if maxDigits > decimals {
		maxDigits = decimals
	}
	d := decimal.NewFromBigInt(value, int32(-decimals)).Truncate(int32(maxDigits))
	return d.String()
}
