package report

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestFormatAmountFrenchDecimals(t *testing.T) {
	out := FormatAmount(decimal.RequireFromString("1234.5"))

	require.True(t, strings.HasSuffix(out, " DT"), "got %q", out)
	// French locale uses a comma as decimal separator.
	require.Contains(t, out, "234,500")
}

func TestFormatAmountPadsToThreeDecimals(t *testing.T) {
	out := FormatAmount(decimal.NewFromInt(7))
	require.Contains(t, out, "7,000")
}

func TestFormatAmountRoundsBeyondPrecision(t *testing.T) {
	out := FormatAmount(decimal.RequireFromString("0.12345"))
	require.Contains(t, out, "0,123")
	require.NotContains(t, out, "0,1234")
}

func TestFormatQuantityTrimsTrailingZeros(t *testing.T) {
	require.Equal(t, "10", FormatQuantity(decimal.NewFromInt(10)))
	require.Equal(t, "2,5", FormatQuantity(decimal.RequireFromString("2.5")))
}
