package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Line describes a cart line used for totals calculation.
type Line struct {
	ProductID       int
	Quantity        int
	Tiers           []PriceTier
	VATRate         Money
	CashbackPercent Money
}

// LineTotals is the priced breakdown of a single line.
type LineTotals struct {
	ProductID       int   `json:"productId"`
	Quantity        int   `json:"quantity"`
	UnitPrice       Money `json:"unitPrice"`
	PriceExclVAT    Money `json:"priceExclVat"`
	SubtotalExclVAT Money `json:"subtotalExclVat"`
	VAT             Money `json:"vat"`
	Cashback        Money `json:"cashback"`
}

// OrderTotals aggregates computed pricing components for a cart.
type OrderTotals struct {
	Lines           []LineTotals `json:"lines"`
	SubtotalExclVAT Money        `json:"subtotalExclVat"`
	VATAmount       Money        `json:"vatAmount"`
	ShippingCost    Money        `json:"shippingCost"`
	Total           Money        `json:"total"`
	CashbackTotal   Money        `json:"cashbackTotal"`
}

// PriceLine resolves the unit price of a line and derives its VAT-exclusive
// subtotal, VAT and cashback. Every money value is rounded to cents.
func PriceLine(line Line) (LineTotals, error) {
	if line.VATRate.IsNegative() || line.VATRate.GreaterThan(one) {
		return LineTotals{}, fmt.Errorf("product %d: %w", line.ProductID, outOfRange("vatRate", line.VATRate, "0", "1"))
	}
	unitPrice, err := ResolveUnitPrice(line.Tiers, line.Quantity)
	if err != nil {
		return LineTotals{}, fmt.Errorf("product %d: %w", line.ProductID, err)
	}
	divisor := one.Add(line.VATRate)
	qty := decimal.NewFromInt(int64(line.Quantity))

	// VAT is backed out of the full line amount so the per-unit cent rounding
	// is not multiplied by the quantity.
	subtotal := Round2(unitPrice.Mul(qty).Div(divisor))
	vat := Round2(subtotal.Mul(line.VATRate))
	cashback, err := CalculateCashback(subtotal, line.CashbackPercent)
	if err != nil {
		return LineTotals{}, fmt.Errorf("product %d: %w", line.ProductID, err)
	}
	return LineTotals{
		ProductID:       line.ProductID,
		Quantity:        line.Quantity,
		UnitPrice:       unitPrice,
		PriceExclVAT:    Round2(unitPrice.Div(divisor)),
		SubtotalExclVAT: subtotal,
		VAT:             vat,
		Cashback:        cashback,
	}, nil
}

// Aggregate calculates order totals for the provided lines and flat shipping
// cost. The grand total is rounded to a whole currency unit at the end only.
func Aggregate(lines []Line, shipping Money) (OrderTotals, error) {
	if len(lines) == 0 {
		return OrderTotals{}, ErrEmptyCart
	}
	if shipping.IsNegative() {
		return OrderTotals{}, outOfRange("shippingCost", shipping, "0", "")
	}
	out := OrderTotals{
		Lines:           make([]LineTotals, 0, len(lines)),
		SubtotalExclVAT: zero,
		VATAmount:       zero,
		ShippingCost:    shipping,
		CashbackTotal:   zero,
	}
	for _, line := range lines {
		priced, err := PriceLine(line)
		if err != nil {
			return OrderTotals{}, err
		}
		out.Lines = append(out.Lines, priced)
		out.SubtotalExclVAT = out.SubtotalExclVAT.Add(priced.SubtotalExclVAT)
		out.VATAmount = out.VATAmount.Add(priced.VAT)
		out.CashbackTotal = out.CashbackTotal.Add(priced.Cashback)
	}
	out.Total = RoundUnit(out.SubtotalExclVAT.Add(out.VATAmount).Add(shipping))
	return out, nil
}
