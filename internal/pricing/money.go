package pricing

import "github.com/shopspring/decimal"

// Money is a decimal currency amount. Values are never float64 so that
// cent-level rounding is reproducible.
type Money = decimal.Decimal

var (
	zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// Round2 rounds to cents, half-up for non-negative amounts.
func Round2(m Money) Money {
	return m.Round(2)
}

// RoundUnit rounds to a whole currency unit, half-up for non-negative amounts.
func RoundUnit(m Money) Money {
	return m.Round(0)
}

// ParseMoney parses a decimal string such as "100.00".
func ParseMoney(value string) (Money, error) {
	return decimal.NewFromString(value)
}

// MustMoney is ParseMoney for constants and tests.
func MustMoney(value string) Money {
	return decimal.RequireFromString(value)
}
