package catalog

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	validator "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

// maxTiers is how many price columns the upstream product record carries.
const maxTiers = 3

// Product is a catalog record parsed into strict pricing shapes.
type Product struct {
	ID              int                 `json:"id" validate:"min=1"`
	Name            string              `json:"name" validate:"required"`
	CategoryID      int                 `json:"categoryId" validate:"min=0"`
	SubcategoryID   int                 `json:"subcategoryId" validate:"min=0"`
	Tiers           []pricing.PriceTier `json:"tiers" validate:"min=1,dive"`
	VATRate         pricing.Money       `json:"vatRate" validate:"gte=0,lte=1"`
	CashbackPercent pricing.Money       `json:"cashbackPercent" validate:"gte=0,lte=100"`
	Stock           *int                `json:"stock,omitempty" validate:"omitempty,min=0"`
	TierWarning     string              `json:"tierWarning,omitempty"`
}

// Rejected is an upstream record quarantined at the boundary.
type Rejected struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// ParseResult splits an upstream listing into usable and quarantined records.
type ParseResult struct {
	Products []Product
	Rejected []Rejected
}

// flexNumber accepts a JSON number, a numeric string or null.
type flexNumber struct {
	value decimal.Decimal
	set   bool
}

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = flexNumber{}
		return nil
	}
	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		text = strings.TrimSpace(s)
		if text == "" {
			*f = flexNumber{}
			return nil
		}
	}
	d, err := decimal.NewFromString(text)
	if err != nil {
		return fmt.Errorf("not a number: %s", text)
	}
	*f = flexNumber{value: d, set: true}
	return nil
}

var (
	maxInteger = decimal.NewFromInt(math.MaxInt32)
	minInteger = decimal.NewFromInt(math.MinInt32)
)

// integer reports the value as an int when it has no fractional part and
// fits in 32 bits.
func (f flexNumber) integer() (int, bool) {
	if !f.set || !f.value.Equal(f.value.Truncate(0)) || f.overflows() {
		return 0, false
	}
	return int(f.value.IntPart()), true
}

func (f flexNumber) overflows() bool {
	return f.set && (f.value.GreaterThan(maxInteger) || f.value.LessThan(minInteger))
}

type rawProduct struct {
	ID            flexNumber `json:"id"`
	Name          string     `json:"name"`
	CategoryID    flexNumber `json:"category_id"`
	SubcategoryID flexNumber `json:"subcategory_id"`
	Price1        flexNumber `json:"price_1"`
	MinQty1       flexNumber `json:"min_qty_1"`
	MaxQty1       flexNumber `json:"max_qty_1"`
	Price2        flexNumber `json:"price_2"`
	MinQty2       flexNumber `json:"min_qty_2"`
	MaxQty2       flexNumber `json:"max_qty_2"`
	Price3        flexNumber `json:"price_3"`
	MinQty3       flexNumber `json:"min_qty_3"`
	MaxQty3       flexNumber `json:"max_qty_3"`
	VAT           flexNumber `json:"vat"`
	CashbackRate  flexNumber `json:"cashback_rate"`
	Stock         flexNumber `json:"stock"`
}

// outOfRange names the first integer column holding a value too large to
// be a quantity or identifier.
func (r rawProduct) outOfRange() string {
	cols := []struct {
		name  string
		value flexNumber
	}{
		{"category_id", r.CategoryID},
		{"subcategory_id", r.SubcategoryID},
		{"stock", r.Stock},
		{"min_qty_1", r.MinQty1},
		{"max_qty_1", r.MaxQty1},
		{"min_qty_2", r.MinQty2},
		{"max_qty_2", r.MaxQty2},
		{"min_qty_3", r.MinQty3},
		{"max_qty_3", r.MaxQty3},
	}
	for _, c := range cols {
		if c.value.overflows() {
			return c.name
		}
	}
	return ""
}

func (r rawProduct) tierColumns() [maxTiers][3]flexNumber {
	return [maxTiers][3]flexNumber{
		{r.Price1, r.MinQty1, r.MaxQty1},
		{r.Price2, r.MinQty2, r.MaxQty2},
		{r.Price3, r.MinQty3, r.MaxQty3},
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// Parse reads an upstream product listing. The body may be a bare array or an
// object with a "data" array. Records that cannot be priced are quarantined.
func Parse(body []byte) (ParseResult, error) {
	items, err := unwrapList(body)
	if err != nil {
		return ParseResult{}, err
	}
	result := ParseResult{Products: make([]Product, 0, len(items))}
	seen := make(map[int]struct{}, len(items))
	for i, item := range items {
		p, err := ParseProduct(item)
		if err == nil {
			if _, dup := seen[p.ID]; dup {
				err = &RecordError{ID: strconv.Itoa(p.ID), Reason: "duplicate id"}
			}
		}
		if err != nil {
			rej := Rejected{Index: i, Reason: err.Error()}
			var recErr *RecordError
			if errors.As(err, &recErr) {
				rej.ID, rej.Reason = recErr.ID, recErr.Reason
			}
			result.Rejected = append(result.Rejected, rej)
			continue
		}
		seen[p.ID] = struct{}{}
		result.Products = append(result.Products, p)
	}
	return result, nil
}

// ParseProduct reads a single upstream record.
func ParseProduct(body []byte) (Product, error) {
	var raw rawProduct
	if err := json.Unmarshal(unwrapObject(body), &raw); err != nil {
		return Product{}, &RecordError{Reason: "malformed record: " + err.Error()}
	}
	idText := ""
	if raw.ID.set {
		idText = raw.ID.value.String()
	}
	id, ok := raw.ID.integer()
	if !ok || id < 1 {
		return Product{}, &RecordError{ID: idText, Reason: "invalid id"}
	}
	if name := raw.outOfRange(); name != "" {
		return Product{}, &RecordError{ID: idText, Reason: name + " out of range"}
	}

	tiers, warning, err := buildTiers(raw)
	if err != nil {
		return Product{}, &RecordError{ID: idText, Reason: err.Error()}
	}
	p := Product{
		ID:              id,
		Name:            strings.TrimSpace(raw.Name),
		Tiers:           tiers,
		VATRate:         raw.VAT.value,
		CashbackPercent: raw.CashbackRate.value, // absent means no cashback
		TierWarning:     warning,
	}
	if !raw.VAT.set {
		return Product{}, &RecordError{ID: idText, Reason: "missing vat"}
	}
	if n, ok := raw.CategoryID.integer(); ok {
		p.CategoryID = n
	}
	if n, ok := raw.SubcategoryID.integer(); ok {
		p.SubcategoryID = n
	}
	if n, ok := raw.Stock.integer(); ok {
		p.Stock = &n
	}
	if err := validate.Struct(p); err != nil {
		return Product{}, &RecordError{ID: idText, Reason: describeValidation(err)}
	}
	return p, nil
}

// buildTiers assembles the price columns into tiers. A record without a base
// price is unusable; ordering problems only produce a warning because the
// resolver falls back to the base tier.
func buildTiers(raw rawProduct) ([]pricing.PriceTier, string, error) {
	cols := raw.tierColumns()
	if !cols[0][0].set {
		return nil, "", errors.New("missing base price")
	}
	tiers := make([]pricing.PriceTier, 0, maxTiers)
	var warnings []string
	for n, col := range cols {
		price, minQty, maxQty := col[0], col[1], col[2]
		if !price.set {
			continue
		}
		if price.value.IsNegative() {
			if n == 0 {
				return nil, "", errors.New("negative base price")
			}
			warnings = append(warnings, fmt.Sprintf("tier %d has a negative price", n+1))
			continue
		}
		tier := pricing.PriceTier{UnitPrice: price.value}
		switch v, ok := minQty.integer(); {
		case ok:
			tier.MinQuantity = v
		case n == 0:
			tier.MinQuantity = 1
		case len(tiers) > 0 && !tiers[len(tiers)-1].Unbounded():
			tier.MinQuantity = *tiers[len(tiers)-1].MaxQuantity + 1
		default:
			warnings = append(warnings, fmt.Sprintf("tier %d has no minimum quantity", n+1))
			continue
		}
		if v, ok := maxQty.integer(); ok {
			tier.MaxQuantity = pricing.Bounded(v)
		}
		tiers = append(tiers, tier)
	}
	if err := pricing.ValidateTiers(tiers); err != nil {
		warnings = append(warnings, err.Error())
	}
	return tiers, strings.Join(warnings, "; "), nil
}

// RecordError explains why one upstream record was quarantined.
type RecordError struct {
	ID     string
	Reason string
}

func (e *RecordError) Error() string {
	if e.ID == "" {
		return "catalog record: " + e.Reason
	}
	return fmt.Sprintf("catalog record %s: %s", e.ID, e.Reason)
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	switch fe.Field() {
	case "VATRate":
		return "vat out of range"
	case "CashbackPercent":
		return "cashback_rate out of range"
	case "Name":
		return "missing name"
	case "Stock":
		return "negative stock"
	default:
		return fmt.Sprintf("invalid %s", strings.ToLower(fe.Field()))
	}
}

func unwrapList(body []byte) ([]json.RawMessage, error) {
	body = bytes.TrimSpace(body)
	var items []json.RawMessage
	if len(body) > 0 && body[0] == '{' {
		var envelope struct {
			Data []json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, fmt.Errorf("decode product listing: %w", err)
		}
		return envelope.Data, nil
	}
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode product listing: %w", err)
	}
	return items, nil
}

func unwrapObject(body []byte) []byte {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	trimmed := bytes.TrimSpace(body)
	if err := json.Unmarshal(trimmed, &envelope); err == nil && len(envelope.Data) > 0 && envelope.Data[0] == '{' {
		return envelope.Data
	}
	return trimmed
}
