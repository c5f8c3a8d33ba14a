// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// MoneyScale is the number of fraction digits persisted for amounts.
const MoneyScale int32 = 2

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// Quantity is an accepted/invoiced quantity. Fractional units (kg, m) are allowed.
type Quantity = decimal.Decimal

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// LineAmount returns quantity × unit price rounded to MoneyScale.
func LineAmount(qty Quantity, unitPrice Money) Money {
	return qty.Mul(unitPrice).Round(MoneyScale)
}
