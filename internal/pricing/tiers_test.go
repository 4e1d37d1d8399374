package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func scenarioTiers() []PriceTier {
	return []PriceTier{
		{MinQuantity: 1, MaxQuantity: Bounded(3), UnitPrice: MustMoney("100.00")},
		{MinQuantity: 4, MaxQuantity: Bounded(11), UnitPrice: MustMoney("90.00")},
		{MinQuantity: 12, UnitPrice: MustMoney("80.00")},
	}
}

func TestResolveUnitPriceScenario(t *testing.T) {
	tiers := scenarioTiers()
	cases := map[int]string{1: "100", 3: "100", 4: "90", 11: "90", 12: "80", 20: "80", 5000: "80"}
	for qty, want := range cases {
		got, err := ResolveUnitPrice(tiers, qty)
		require.NoError(t, err)
		require.Truef(t, MustMoney(want).Equal(got), "qty %d: want %s got %s", qty, want, got)
	}
}

func TestResolveUnitPriceMatchesExactlyOneTier(t *testing.T) {
	tiers := scenarioTiers()
	for qty := 1; qty <= 40; qty++ {
		matches := 0
		var matched PriceTier
		for _, tier := range tiers {
			if tier.Contains(qty) {
				matches++
				matched = tier
			}
		}
		require.Equal(t, 1, matches, "qty %d", qty)
		got, err := ResolveUnitPrice(tiers, qty)
		require.NoError(t, err)
		require.True(t, matched.UnitPrice.Equal(got))
	}
}

func TestResolveUnitPriceSingleUnboundedTier(t *testing.T) {
	tiers := []PriceTier{{MinQuantity: 1, UnitPrice: MustMoney("42.50")}}
	for _, qty := range []int{1, 2, 99, 100000} {
		got, err := ResolveUnitPrice(tiers, qty)
		require.NoError(t, err)
		require.Equal(t, "42.5", got.String())
	}
}

func TestResolveUnitPriceFallsBackOnGap(t *testing.T) {
	tiers := []PriceTier{
		{MinQuantity: 1, MaxQuantity: Bounded(3), UnitPrice: MustMoney("100")},
		{MinQuantity: 10, MaxQuantity: Bounded(20), UnitPrice: MustMoney("70")},
	}
	got, err := ResolveUnitPrice(tiers, 5)
	require.NoError(t, err)
	require.True(t, MustMoney("100").Equal(got))

	got, err = ResolveUnitPrice(tiers, 21)
	require.NoError(t, err)
	require.True(t, MustMoney("100").Equal(got))
}

func TestResolveUnitPriceRejectsBadInput(t *testing.T) {
	_, err := ResolveUnitPrice(nil, 1)
	require.ErrorIs(t, err, ErrMalformedTierData)

	_, err = ResolveUnitPrice(scenarioTiers(), 0)
	require.ErrorIs(t, err, ErrInvalidRange)
	var rangeErr *RangeError
	require.True(t, errors.As(err, &rangeErr))
	require.Equal(t, "quantity", rangeErr.Field)
}

func TestValidateTiers(t *testing.T) {
	require.NoError(t, ValidateTiers(scenarioTiers()))
	require.NoError(t, ValidateTiers([]PriceTier{{MinQuantity: 1, UnitPrice: MustMoney("1")}}))

	bad := map[string][]PriceTier{
		"empty":         nil,
		"base not one":  {{MinQuantity: 2, UnitPrice: MustMoney("1")}},
		"negative":      {{MinQuantity: 1, UnitPrice: MustMoney("-1")}},
		"max below min": {{MinQuantity: 1, MaxQuantity: Bounded(0), UnitPrice: MustMoney("1")}},
		"gap": {
			{MinQuantity: 1, MaxQuantity: Bounded(3), UnitPrice: MustMoney("5")},
			{MinQuantity: 5, UnitPrice: MustMoney("4")},
		},
		"overlap": {
			{MinQuantity: 1, MaxQuantity: Bounded(5), UnitPrice: MustMoney("5")},
			{MinQuantity: 3, UnitPrice: MustMoney("4")},
		},
		"open tier not last": {
			{MinQuantity: 1, UnitPrice: MustMoney("5")},
			{MinQuantity: 2, UnitPrice: MustMoney("4")},
		},
	}
	for name, tiers := range bad {
		require.ErrorIs(t, ValidateTiers(tiers), ErrMalformedTierData, name)
	}
}

func TestCloneTiersDoesNotSharePointers(t *testing.T) {
	tiers := scenarioTiers()
	cloned := CloneTiers(tiers)
	*cloned[0].MaxQuantity = 99
	require.Equal(t, 3, *tiers[0].MaxQuantity)
	require.Nil(t, CloneTiers(nil))
}
