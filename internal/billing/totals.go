package billing

import (
	"github.com/shopspring/decimal"

	"github.com/gestcom-app/gestcom/internal/money"
)

// ComputeLine returns a line's total excluding tax: quantity x unit
// price, less the per-line discount, rounded to the currency precision.
// The discount multiply is skipped when the discount is zero so the
// common path introduces no rounding noise. Tax is not computed here;
// it depends on the document-level base (see Aggregate).
func ComputeLine(item LineItem) decimal.Decimal {
	price := item.UnitPrice
	if item.DiscountPct.IsPositive() {
		price = price.Mul(money.DiscountFactor(item.DiscountPct))
	}
	return money.Round(price.Mul(item.Quantity))
}

// Aggregate combines line items with document-level modifiers into the
// final document totals. The step order is fixed: stored documents must
// reproduce bit for bit.
//
//  1. Sum line totals excluding tax.
//  2. Apply the global discount to the sum.
//  3. Compute the FODEC levy on the post-discount base.
//  4. Tax each line on its post-discount total plus its pro-rata share
//     of the levy. Rates differ per line, so the levy is allocated back
//     to lines before taxing rather than taxed once at a blended rate.
//  5. Add the fiscal stamp, a fixed tax-exempt amount never scaled by
//     the discount.
//
// An empty line slice yields all-zero totals, stamp included; a draft
// with no lines is a valid document that owes nothing.
func Aggregate(lines []LineItem, mods Modifiers) Totals {
	if len(lines) == 0 {
		return Totals{
			TotalExclTax: decimal.Zero,
			TotalFodec:   decimal.Zero,
			TotalTax:     decimal.Zero,
			TotalStamp:   decimal.Zero,
			TotalInclTax: decimal.Zero,
		}
	}

	lineTotals := make([]decimal.Decimal, len(lines))
	sumLines := decimal.Zero
	for i, line := range lines {
		lineTotals[i] = ComputeLine(line)
		sumLines = sumLines.Add(lineTotals[i])
	}

	discount := money.DiscountFactor(mods.GlobalDiscountPct)
	totalExclTax := money.Round(sumLines.Mul(discount))

	totalFodec := decimal.Zero
	if mods.FodecEnabled {
		totalFodec = money.Round(money.Percent(totalExclTax, mods.FodecRatePct))
	}

	totalTax := decimal.Zero
	for i, line := range lines {
		lineBase := lineTotals[i].Mul(discount)
		if mods.FodecEnabled && !totalExclTax.IsZero() {
			share := totalFodec.Mul(lineBase).Div(totalExclTax)
			lineBase = lineBase.Add(share)
		}
		totalTax = totalTax.Add(money.Percent(lineBase, line.TaxPct))
	}
	totalTax = money.Round(totalTax)

	totalStamp := decimal.Zero
	if mods.StampEnabled {
		totalStamp = money.Round(mods.StampAmount)
	}

	return Totals{
		TotalExclTax: totalExclTax,
		TotalFodec:   totalFodec,
		TotalTax:     totalTax,
		TotalStamp:   totalStamp,
		TotalInclTax: money.Round(totalExclTax.Add(totalFodec).Add(totalTax).Add(totalStamp)),
	}
}

// Reconciles reports whether the components of t add up to its total
// including tax within the monetary tolerance.
func (t Totals) Reconciles() bool {
	sum := t.TotalExclTax.Add(t.TotalFodec).Add(t.TotalTax).Add(t.TotalStamp)
	return money.Equal(sum, t.TotalInclTax)
}
