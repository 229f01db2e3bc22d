package decimal

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Zero is decimal zero
var Zero = decimal.Zero

// Tolerance is the largest difference accepted between two monetary totals (one cent)
var Tolerance = decimal.New(1, -2)

var hundred = decimal.NewFromInt(100)

// FromInt creates decimal from int
func FromInt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// FromString parses decimal from string. Surrounding whitespace is ignored,
// as NF-e producers occasionally pad numeric leaves.
func FromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

// MustFromString parses decimal from string, panics on error
func MustFromString(s string) decimal.Decimal {
	d, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Round2 rounds to centavos
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// TaxValue computes base * rate / 100 rounded to 2 places
func TaxValue(base, ratePercent decimal.Decimal) decimal.Decimal {
	if base.IsZero() || ratePercent.IsZero() {
		return Zero
	}
	return base.Mul(ratePercent).Div(hundred).Round(2)
}

// Fixed2 formats with exactly two decimal places, the form every NF-e monetary leaf uses
func Fixed2(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Sum sums a slice of decimals
func Sum(values []decimal.Decimal) decimal.Decimal {
	result := Zero
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}

// WithinTolerance reports whether |a - b| <= 0.01
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// IsPositive returns true if decimal is greater than zero
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(Zero)
}

// IsNonNegative returns true if decimal is >= zero
func IsNonNegative(d decimal.Decimal) bool {
	return d.GreaterThanOrEqual(Zero)
}
