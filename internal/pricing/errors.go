package pricing

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange is returned when a rate, percentage, quantity or amount falls outside its domain.
	ErrInvalidRange = errors.New("pricing: value out of range")
	// ErrMalformedTierData is returned when a tier table is empty or breaks the ordering invariant.
	ErrMalformedTierData = errors.New("pricing: malformed tier data")
	// ErrEmptyCart is returned when totals are requested for a cart without lines.
	ErrEmptyCart = errors.New("pricing: cart is empty")
)

// RangeError names the offending input so callers can present a correction path.
type RangeError struct {
	Field string
	Value string
	Min   string
	Max   string
}

func (e *RangeError) Error() string {
	if e.Max == "" {
		return fmt.Sprintf("pricing: %s=%s must be >= %s", e.Field, e.Value, e.Min)
	}
	return fmt.Sprintf("pricing: %s=%s must be within [%s, %s]", e.Field, e.Value, e.Min, e.Max)
}

// Is makes errors.Is(err, ErrInvalidRange) hold for every RangeError.
func (e *RangeError) Is(target error) bool {
	return target == ErrInvalidRange
}

func outOfRange(field string, value Money, min, max string) error {
	return &RangeError{Field: field, Value: value.String(), Min: min, Max: max}
}
