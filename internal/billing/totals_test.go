package billing

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/gestcom-app/gestcom/internal/money"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeLineZeroDiscountPath(t *testing.T) {
	got := ComputeLine(LineItem{
		Quantity:  dec("10"),
		UnitPrice: dec("100.000"),
	})
	require.Equal(t, "1000", got.String())
}

func TestComputeLineWithDiscount(t *testing.T) {
	got := ComputeLine(LineItem{
		Quantity:    dec("3"),
		UnitPrice:   dec("19.990"),
		DiscountPct: dec("10"),
	})
	// 19.990 * 0.9 * 3 = 53.973
	require.Equal(t, "53.973", got.String())
}

func TestComputeLineNegativeQuantityStillComputes(t *testing.T) {
	got := ComputeLine(LineItem{
		Quantity:  dec("-2"),
		UnitPrice: dec("50.000"),
	})
	require.Equal(t, "-100", got.String())
}

func TestComputeLineZeroPriceDefaults(t *testing.T) {
	got := ComputeLine(LineItem{Quantity: dec("5")})
	require.True(t, got.IsZero())
}

func TestAggregateSimpleInvoice(t *testing.T) {
	lines := []LineItem{
		{Quantity: dec("10"), UnitPrice: dec("100.000"), TaxPct: dec("19")},
	}
	totals := Aggregate(lines, Modifiers{})

	require.Equal(t, "1000", totals.TotalExclTax.String())
	require.Equal(t, "190", totals.TotalTax.String())
	require.True(t, totals.TotalFodec.IsZero())
	require.True(t, totals.TotalStamp.IsZero())
	require.Equal(t, "1190", totals.TotalInclTax.String())
}

func TestAggregateWithFodecAndStamp(t *testing.T) {
	lines := []LineItem{
		{Quantity: dec("10"), UnitPrice: dec("100.000"), TaxPct: dec("19")},
	}
	totals := Aggregate(lines, Modifiers{
		FodecEnabled: true,
		FodecRatePct: dec("1"),
		StampEnabled: true,
		StampAmount:  dec("1.000"),
	})

	require.Equal(t, "10", totals.TotalFodec.String())
	// Tax base becomes 1010.000 at 19%.
	require.Equal(t, "191.9", totals.TotalTax.String())
	require.Equal(t, "1", totals.TotalStamp.String())
	require.Equal(t, "1202.9", totals.TotalInclTax.String())
}

func TestAggregateLevyProratedAcrossMixedRates(t *testing.T) {
	// Two lines with different tax rates share the levy pro-rata by
	// their post-discount HT, not at a blended rate.
	lines := []LineItem{
		{Quantity: dec("1"), UnitPrice: dec("600.000"), TaxPct: dec("19")},
		{Quantity: dec("1"), UnitPrice: dec("400.000"), TaxPct: dec("7")},
	}
	totals := Aggregate(lines, Modifiers{FodecEnabled: true, FodecRatePct: dec("1")})

	require.Equal(t, "1000", totals.TotalExclTax.String())
	require.Equal(t, "10", totals.TotalFodec.String())
	// (600+6)*19% + (400+4)*7% = 115.14 + 28.28 = 143.42
	require.Equal(t, "143.42", totals.TotalTax.String())
	require.Equal(t, "1153.42", totals.TotalInclTax.String())
}

func TestAggregateGlobalDiscountAppliedBeforeLevy(t *testing.T) {
	lines := []LineItem{
		{Quantity: dec("10"), UnitPrice: dec("100.000"), TaxPct: dec("19")},
	}
	totals := Aggregate(lines, Modifiers{
		GlobalDiscountPct: dec("10"),
		FodecEnabled:      true,
		FodecRatePct:      dec("1"),
	})

	require.Equal(t, "900", totals.TotalExclTax.String())
	require.Equal(t, "9", totals.TotalFodec.String())
	// Base 909.000 at 19%.
	require.Equal(t, "172.71", totals.TotalTax.String())
}

func TestAggregateEmptyLines(t *testing.T) {
	// No lines means nothing is owed, even when modifiers are enabled.
	totals := Aggregate(nil, Modifiers{
		GlobalDiscountPct: dec("10"),
		FodecEnabled:      true,
		FodecRatePct:      dec("1"),
		StampEnabled:      true,
		StampAmount:       dec("1.000"),
	})
	require.True(t, totals.TotalExclTax.IsZero())
	require.True(t, totals.TotalFodec.IsZero())
	require.True(t, totals.TotalTax.IsZero())
	require.True(t, totals.TotalStamp.IsZero())
	require.True(t, totals.TotalInclTax.IsZero())
}

func TestAggregateFullGlobalDiscount(t *testing.T) {
	lines := []LineItem{
		{Quantity: dec("2"), UnitPrice: dec("75.500"), TaxPct: dec("19")},
	}
	totals := Aggregate(lines, Modifiers{
		GlobalDiscountPct: dec("100"),
		FodecEnabled:      true,
		FodecRatePct:      dec("1"),
	})
	require.True(t, totals.TotalExclTax.IsZero())
	require.True(t, totals.TotalFodec.IsZero())
	require.True(t, totals.TotalTax.IsZero())
}

func TestAggregateCreditNoteNegativeTotals(t *testing.T) {
	lines := []LineItem{
		{Quantity: dec("1"), UnitPrice: dec("-200.000"), TaxPct: dec("19")},
	}
	totals := Aggregate(lines, Modifiers{})
	require.Equal(t, "-200", totals.TotalExclTax.String())
	require.Equal(t, "-38", totals.TotalTax.String())
	require.Equal(t, "-238", totals.TotalInclTax.String())
}

func TestAggregateIdempotent(t *testing.T) {
	lines := []LineItem{
		{Quantity: dec("3.5"), UnitPrice: dec("12.345"), DiscountPct: dec("5"), TaxPct: dec("19")},
		{Quantity: dec("1"), UnitPrice: dec("99.999"), TaxPct: dec("7")},
	}
	mods := Modifiers{GlobalDiscountPct: dec("2"), FodecEnabled: true, FodecRatePct: dec("1")}

	first := Aggregate(lines, mods)
	second := Aggregate(lines, mods)
	require.True(t, first.TotalInclTax.Equal(second.TotalInclTax))
	require.True(t, first.TotalTax.Equal(second.TotalTax))
}

func TestAggregateReconciliationPropertyRandomised(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		var lines []LineItem
		for j := 0; j < 1+rng.Intn(6); j++ {
			lines = append(lines, LineItem{
				Quantity:    decimal.NewFromFloat(rng.Float64() * 50),
				UnitPrice:   decimal.NewFromFloat(rng.Float64()*500 - 100),
				DiscountPct: decimal.NewFromInt(int64(rng.Intn(101))),
				TaxPct:      decimal.NewFromInt(int64(rng.Intn(30))),
			})
		}
		mods := Modifiers{
			GlobalDiscountPct: decimal.NewFromInt(int64(rng.Intn(101))),
			FodecEnabled:      rng.Intn(2) == 0,
			FodecRatePct:      decimal.NewFromInt(int64(rng.Intn(3))),
			StampEnabled:      rng.Intn(2) == 0,
			StampAmount:       dec("1.000"),
		}
		totals := Aggregate(lines, mods)
		require.True(t, totals.Reconciles(), "case %d: %+v", i, totals)
		require.True(t, money.Equal(
			totals.TotalInclTax,
			totals.TotalExclTax.Add(totals.TotalFodec).Add(totals.TotalTax).Add(totals.TotalStamp),
		))
	}
}
