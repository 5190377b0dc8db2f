package output

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FormatCents formats an amount in cents as dollars
func FormatCents(cents int64) string {
	d := decimal.New(cents, -2)
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// FormatRate formats a fractional rate as a percentage
func FormatRate(rate *decimal.Decimal) string {
	if rate == nil {
		return "-"
	}
	return rate.Mul(hundred).StringFixed(2) + "%"
}

func formatOptionalCents(cents *int64) string {
	if cents == nil {
		return "-"
	}
	return FormatCents(*cents)
}
