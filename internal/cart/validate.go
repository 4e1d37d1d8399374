package cart

import (
	"errors"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

// MaxLineQuantity caps the units of one product a cart line may hold.
const MaxLineQuantity = 9999

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// validateLine checks the invariants every stored line must hold. Tier tables
// only need a usable base tier; ordering problems are tolerated because the
// resolver falls back to the first tier.
func validateLine(l Line) error {
	if l.ProductID < 1 {
		return &pricing.RangeError{Field: "productId", Value: strconv.Itoa(l.ProductID), Min: "1"}
	}
	if err := checkQuantity(l.Quantity); err != nil {
		return err
	}
	if len(l.Tiers) == 0 {
		return pricing.ErrMalformedTierData
	}
	for _, t := range l.Tiers {
		if t.MinQuantity < 1 || t.UnitPrice.IsNegative() {
			return pricing.ErrMalformedTierData
		}
	}
	if l.VATRate.IsNegative() || l.VATRate.GreaterThan(one) {
		return &pricing.RangeError{Field: "vatRate", Value: l.VATRate.String(), Min: "0", Max: "1"}
	}
	if l.CashbackPercent.IsNegative() || l.CashbackPercent.GreaterThan(hundred) {
		return &pricing.RangeError{Field: "cashbackPercent", Value: l.CashbackPercent.String(), Min: "0", Max: "100"}
	}
	return nil
}

func checkQuantity(quantity int) error {
	if quantity < 1 || quantity > MaxLineQuantity {
		return &pricing.RangeError{Field: "quantity", Value: strconv.Itoa(quantity), Min: "1", Max: strconv.Itoa(MaxLineQuantity)}
	}
	return nil
}

func reasonFor(err error) string {
	var rangeErr *pricing.RangeError
	if errors.As(err, &rangeErr) {
		switch rangeErr.Field {
		case "productId":
			return ReasonProductID
		case "quantity":
			return ReasonQuantity
		case "vatRate":
			return ReasonVATRate
		case "cashbackPercent":
			return ReasonCashbackPercent
		}
	}
	if errors.Is(err, pricing.ErrMalformedTierData) {
		return ReasonTiers
	}
	return ReasonMalformed
}
