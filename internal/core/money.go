// Package core holds the ledger's domain types and the pure calculation
// rules: income allocation and overspend absorption.
//
// Amounts are decimal values, never floats and never rounded by the engine.
// Negative means outflow, positive means inflow.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

var Hundred = decimal.NewFromInt(100)

// ParseAmount converts a user-entered decimal string to an exact amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and an
// optional sign. No rounding is applied: whatever precision the caller
// supplies is stored as-is.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParsePercentage parses a pull percentage and checks the 0-100 range.
func ParsePercentage(s string) (decimal.Decimal, error) {
	d, err := ParseAmount(s)
	if err != nil {
		return decimal.Zero, ErrInvalidPull
	}
	if d.Sign() < 0 || d.GreaterThan(Hundred) {
		return decimal.Zero, ErrInvalidPull
	}
	return d, nil
}
