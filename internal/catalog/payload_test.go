package catalog

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

const upstreamListing = `[
  {"id": 1, "name": "Cuaderno profesional", "category_id": 2, "subcategory_id": 7,
   "price_1": "100.00", "min_qty_1": 1, "max_qty_1": 3,
   "price_2": 90, "min_qty_2": "4", "max_qty_2": 11,
   "price_3": 80, "min_qty_3": 12, "max_qty_3": null,
   "vat": "0.16", "cashback_rate": 5, "stock": 40},
  {"id": "2", "name": "Lapiz", "category_id": 2, "subcategory_id": 8,
   "price_1": 12.5, "min_qty_1": null, "max_qty_1": null,
   "vat": 0, "cashback_rate": null},
  {"id": 0, "name": "Sin id", "price_1": 10, "vat": 0.16},
  {"id": 4, "name": "Sin precio", "price_1": null, "vat": 0.16},
  {"id": 5, "name": "IVA en porcentaje", "price_1": 10, "vat": 16},
  {"id": 6, "name": "Cashback excesivo", "price_1": 10, "vat": 0.16, "cashback_rate": 150},
  {"id": "abc", "name": "Id roto", "price_1": 10, "vat": 0.16},
  {"id": 1, "name": "Duplicado", "price_1": 10, "vat": 0.16}
]`

func TestParseQuarantinesBadRecords(t *testing.T) {
	res, err := Parse([]byte(upstreamListing))
	require.NoError(t, err)
	require.Len(t, res.Products, 2)

	first := res.Products[0]
	require.Equal(t, 1, first.ID)
	require.Equal(t, 2, first.CategoryID)
	require.Equal(t, 7, first.SubcategoryID)
	require.Len(t, first.Tiers, 3)
	require.NoError(t, pricing.ValidateTiers(first.Tiers))
	require.Empty(t, first.TierWarning)
	require.True(t, first.Tiers[2].Unbounded())
	require.Equal(t, 40, *first.Stock)
	require.True(t, pricing.MustMoney("0.16").Equal(first.VATRate))

	second := res.Products[1]
	require.Equal(t, 2, second.ID)
	require.Len(t, second.Tiers, 1)
	require.Equal(t, 1, second.Tiers[0].MinQuantity)
	require.True(t, second.Tiers[0].Unbounded())
	require.True(t, second.CashbackPercent.IsZero())
	require.Nil(t, second.Stock)

	reasons := map[int]string{}
	for _, r := range res.Rejected {
		reasons[r.Index] = r.Reason
	}
	require.Equal(t, "invalid id", reasons[2])
	require.Equal(t, "missing base price", reasons[3])
	require.Equal(t, "vat out of range", reasons[4])
	require.Equal(t, "cashback_rate out of range", reasons[5])
	require.Contains(t, reasons[6], "malformed record")
	require.Equal(t, "duplicate id", reasons[7])
}

func TestParseQuarantinesOversizedIntegers(t *testing.T) {
	res, err := Parse([]byte(`[
	  {"id": 1e20, "name": "Id enorme", "price_1": 10, "vat": 0.16},
	  {"id": "9223372036854775808", "name": "Id int64", "price_1": 10, "vat": 0.16},
	  {"id": 3, "name": "Minimo enorme", "price_1": 10, "min_qty_1": 1e20, "vat": 0.16},
	  {"id": 4, "name": "Stock enorme", "price_1": 10, "stock": 4294967296, "vat": 0.16},
	  {"id": 5, "name": "Maximo negativo", "price_1": 10, "max_qty_1": -3000000000, "vat": 0.16},
	  {"id": 2147483647, "name": "Limite", "price_1": 10, "max_qty_1": 2147483647, "vat": 0.16}
	]`))
	require.NoError(t, err)
	require.Len(t, res.Products, 1)
	require.Equal(t, 2147483647, res.Products[0].ID)

	reasons := map[int]string{}
	for _, r := range res.Rejected {
		reasons[r.Index] = r.Reason
	}
	require.Equal(t, "invalid id", reasons[0])
	require.Equal(t, "invalid id", reasons[1])
	require.Equal(t, "min_qty_1 out of range", reasons[2])
	require.Equal(t, "stock out of range", reasons[3])
	require.Equal(t, "max_qty_1 out of range", reasons[4])
}

func TestParseFlagsInconsistentTiers(t *testing.T) {
	body := `{"id": 9, "name": "Hueco", "price_1": 50, "min_qty_1": 1, "max_qty_1": 3,
	          "price_2": 45, "min_qty_2": 6, "vat": 0.16, "cashback_rate": 2}`
	p, err := ParseProduct([]byte(body))
	require.NoError(t, err)
	require.NotEmpty(t, p.TierWarning)
	require.Len(t, p.Tiers, 2)

	price, err := pricing.ResolveUnitPrice(p.Tiers, 4)
	require.NoError(t, err)
	require.True(t, pricing.MustMoney("50").Equal(price), "gap falls back to the base tier")
}

func TestParseInfersMissingMinimum(t *testing.T) {
	body := `{"id": 3, "name": "Caja", "price_1": 20, "max_qty_1": 9, "price_2": 18, "vat": 0.16}`
	p, err := ParseProduct([]byte(body))
	require.NoError(t, err)
	require.Len(t, p.Tiers, 2)
	require.Equal(t, 10, p.Tiers[1].MinQuantity)
	require.Empty(t, p.TierWarning)
}

func TestParseAcceptsEnvelope(t *testing.T) {
	res, err := Parse([]byte(`{"data": [{"id": 1, "name": "A", "price_1": 1, "vat": 0}]}`))
	require.NoError(t, err)
	require.Len(t, res.Products, 1)

	p, err := ParseProduct([]byte(`{"data": {"id": 8, "name": "B", "price_1": 3, "vat": 0.08}}`))
	require.NoError(t, err)
	require.Equal(t, 8, p.ID)

	_, err = Parse([]byte(`not json`))
	require.Error(t, err)
}
