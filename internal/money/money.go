// Package money converts between naira amounts on the API boundary and the
// int64 kobo values used everywhere inside the service. All ledger arithmetic
// happens in kobo; decimals exist only at the edge.
package money

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrNotPositive    = errors.New("amount must be greater than zero")
	ErrFractionalKobo = errors.New("amount has sub-kobo precision")
)

var hundred = decimal.NewFromInt(100)

// KoboFromNGN converts an exact naira amount to kobo. Amounts with more than
// two decimal places are rejected rather than rounded.
func KoboFromNGN(ngn decimal.Decimal) (int64, error) {
	if ngn.Sign() <= 0 {
		return 0, ErrNotPositive
	}
	kobo := ngn.Mul(hundred)
	if !kobo.IsInteger() {
		return 0, ErrFractionalKobo
	}
	if !kobo.BigInt().IsInt64() {
		return 0, errors.New("amount out of range")
	}
	return kobo.IntPart(), nil
}

// NGN renders a kobo amount as naira for snapshots.
func NGN(kobo int64) float64 {
	return float64(kobo) / 100
}
