package pricing

// CalculateCashback returns the cashback earned on a VAT-exclusive subtotal.
// Percentages outside [0, 100] are rejected rather than clamped.
func CalculateCashback(subtotalExclVAT, cashbackPercent Money) (Money, error) {
	if cashbackPercent.IsNegative() || cashbackPercent.GreaterThan(hundred) {
		return Money{}, outOfRange("cashbackPercent", cashbackPercent, "0", "100")
	}
	if subtotalExclVAT.IsNegative() {
		return Money{}, outOfRange("subtotalExclVat", subtotalExclVAT, "0", "")
	}
	return Round2(subtotalExclVAT.Mul(cashbackPercent).Div(hundred)), nil
}
