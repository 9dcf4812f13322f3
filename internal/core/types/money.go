// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// MoneyPlaces is the number of decimals DOP amounts are rounded to.
const MoneyPlaces int32 = 2

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

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

// RoundMoney rounds half away from zero to MoneyPlaces.
func RoundMoney(m Money) Money {
	return m.Round(MoneyPlaces)
}

// ApplyRate returns base * rate rounded to MoneyPlaces.
// rate is a fraction, e.g. 0.18 for 18%.
func ApplyRate(base, rate Money) Money {
	return RoundMoney(base.Mul(rate))
}
