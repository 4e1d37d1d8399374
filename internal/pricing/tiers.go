package pricing

import (
	"fmt"
	"strconv"
)

// PriceTier is one quantity bracket of a product's price table. A nil
// MaxQuantity marks the open-ended top tier. UnitPrice includes VAT.
type PriceTier struct {
	MinQuantity int   `json:"minQuantity"`
	MaxQuantity *int  `json:"maxQuantity"`
	UnitPrice   Money `json:"unitPrice"`
}

// Unbounded reports whether the tier has no upper quantity limit.
func (t PriceTier) Unbounded() bool {
	return t.MaxQuantity == nil
}

// Contains reports whether quantity falls inside the tier's range.
func (t PriceTier) Contains(quantity int) bool {
	if quantity < t.MinQuantity {
		return false
	}
	return t.MaxQuantity == nil || quantity <= *t.MaxQuantity
}

// Bounded is a helper for building tier tables: it returns a pointer to max.
func Bounded(max int) *int {
	return &max
}

// ResolveUnitPrice returns the unit price of the first tier containing quantity.
// When no tier matches, which only happens with gaps in upstream data, the
// base tier's price is used.
func ResolveUnitPrice(tiers []PriceTier, quantity int) (Money, error) {
	if len(tiers) == 0 {
		return Money{}, fmt.Errorf("resolve unit price: no tiers: %w", ErrMalformedTierData)
	}
	if quantity < 1 {
		return Money{}, &RangeError{Field: "quantity", Value: strconv.Itoa(quantity), Min: "1"}
	}
	for _, tier := range tiers {
		if tier.Contains(quantity) {
			return tier.UnitPrice, nil
		}
	}
	return tiers[0].UnitPrice, nil
}

// ValidateTiers checks the ordering invariant of a tier table: a base tier
// starting at 1, ascending contiguous non-overlapping ranges, and only the
// last tier may be open-ended.
func ValidateTiers(tiers []PriceTier) error {
	if len(tiers) == 0 {
		return fmt.Errorf("no tiers: %w", ErrMalformedTierData)
	}
	if tiers[0].MinQuantity != 1 {
		return fmt.Errorf("base tier starts at %d: %w", tiers[0].MinQuantity, ErrMalformedTierData)
	}
	for i, tier := range tiers {
		if tier.UnitPrice.IsNegative() {
			return fmt.Errorf("tier %d has negative price: %w", i, ErrMalformedTierData)
		}
		if tier.MaxQuantity != nil && *tier.MaxQuantity < tier.MinQuantity {
			return fmt.Errorf("tier %d max %d below min %d: %w", i, *tier.MaxQuantity, tier.MinQuantity, ErrMalformedTierData)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if prev.MaxQuantity == nil {
			return fmt.Errorf("tier %d follows an open-ended tier: %w", i, ErrMalformedTierData)
		}
		if tier.MinQuantity != *prev.MaxQuantity+1 {
			return fmt.Errorf("tier %d starts at %d, want %d: %w", i, tier.MinQuantity, *prev.MaxQuantity+1, ErrMalformedTierData)
		}
	}
	return nil
}

// CloneTiers returns a deep copy so stored lines never share MaxQuantity pointers with callers.
func CloneTiers(tiers []PriceTier) []PriceTier {
	if tiers == nil {
		return nil
	}
	out := make([]PriceTier, len(tiers))
	for i, tier := range tiers {
		out[i] = PriceTier{MinQuantity: tier.MinQuantity, UnitPrice: tier.UnitPrice}
		if tier.MaxQuantity != nil {
			out[i].MaxQuantity = Bounded(*tier.MaxQuantity)
		}
	}
	return out
}
