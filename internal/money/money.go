// Package money provides fixed-precision monetary arithmetic for the
// 3-decimal (millime) currency precision used across the application.
package money

import "github.com/shopspring/decimal"

// Precision is the number of decimal places for monetary amounts.
const Precision = 3

// Epsilon is the tolerance used when comparing computed against stored
// amounts. Rounding drift below this threshold is considered equal.
var Epsilon = decimal.New(1, -3)

var roundHalf = decimal.New(5, -1)

// Round rounds an amount to 3 decimal places, half up: a tie rounds
// toward positive infinity, so -0.0005 becomes 0.000 while 0.0005
// becomes 0.001. This differs from decimal.Round, which takes ties
// away from zero and would turn -0.0005 into -0.001 on credit notes.
// Every monetary output must pass through Round before being compared
// or persisted.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Shift(Precision).Add(roundHalf).Floor().Shift(-Precision)
}

// FromFloat converts a float64 into a rounded monetary amount.
// Prefer FromString when the value originates from user input.
func FromFloat(f float64) decimal.Decimal {
	return Round(decimal.NewFromFloat(f))
}

// FromString parses a decimal string into a monetary amount.
func FromString(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, err
	}
	return Round(d), nil
}

// MustFromString parses a decimal string and panics on error.
// Use only for constants and tests.
func MustFromString(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return Round(d)
}

// Equal reports whether two amounts are equal within Epsilon.
func Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}

// LessOrEqual reports whether a <= b within Epsilon. The boundary is
// inclusive: a value exceeding b by exactly Epsilon still passes.
func LessOrEqual(a, b decimal.Decimal) bool {
	return a.LessThanOrEqual(b.Add(Epsilon))
}

// Percent returns base x rate/100, unrounded. Callers round once per
// aggregation step rather than after every multiply.
func Percent(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Div(decimal.NewFromInt(100))
}

// DiscountFactor returns (1 - pct/100) as a multiplier.
func DiscountFactor(pct decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(1).Sub(pct.Div(decimal.NewFromInt(100)))
}

// Max returns the larger of two amounts.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Sum adds amounts without intermediate rounding.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
