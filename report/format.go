package report

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/gestcom-app/gestcom/internal/money"
)

var frenchPrinter = message.NewPrinter(language.French)

// FormatAmount renders a monetary amount for display: French digit
// grouping, three decimals, " DT" suffix. Display only; computations
// never pass through here.
func FormatAmount(amount decimal.Decimal) string {
	value, _ := money.Round(amount).Float64()
	return frenchPrinter.Sprintf("%v DT", number.Decimal(value,
		number.MinFractionDigits(3), number.MaxFractionDigits(3)))
}

// FormatQuantity renders a quantity with up to three decimals and no
// currency suffix.
func FormatQuantity(qty decimal.Decimal) string {
	value, _ := qty.Float64()
	return frenchPrinter.Sprintf("%v", number.Decimal(value, number.MaxFractionDigits(3)))
}
