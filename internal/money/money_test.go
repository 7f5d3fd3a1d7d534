package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRoundHalfUp(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1.2345", "1.235"},
		{"1.2344", "1.234"},
		{"1.2335", "1.234"},
		{"0.0005", "0.001"},
		{"1000", "1000"},
		// Negative ties round toward positive infinity, not away
		// from zero; credit note amounts hit these boundaries.
		{"-0.0005", "0"},
		{"-1.2345", "-1.234"},
		{"-1.2346", "-1.235"},
		{"-1.2351", "-1.235"},
	}
	for _, tc := range cases {
		d, err := decimal.NewFromString(tc.in)
		require.NoError(t, err)
		require.Equal(t, tc.want, Round(d).String(), "round %s", tc.in)
	}
}

func TestEqualWithinEpsilon(t *testing.T) {
	a := MustFromString("100.000")
	require.True(t, Equal(a, MustFromString("100.001")))
	require.True(t, Equal(a, MustFromString("99.999")))
	require.False(t, Equal(a, MustFromString("100.002")))
}

func TestLessOrEqualInclusiveBoundary(t *testing.T) {
	// Exactly epsilon over the limit must still pass.
	require.True(t, LessOrEqual(MustFromString("0.001"), decimal.Zero))
	require.False(t, LessOrEqual(MustFromString("0.002"), decimal.Zero))
	require.True(t, LessOrEqual(MustFromString("490.000"), MustFromString("490.000")))
}

func TestPercentAndDiscountFactor(t *testing.T) {
	base := MustFromString("1000.000")
	require.Equal(t, "190", Percent(base, decimal.NewFromInt(19)).String())
	require.Equal(t, "0.9", DiscountFactor(decimal.NewFromInt(10)).String())
}

func TestSumNoIntermediateRounding(t *testing.T) {
	got := Round(Sum(
		decimal.RequireFromString("0.0004"),
		decimal.RequireFromString("0.0004"),
		decimal.RequireFromString("0.0004"),
	))
	require.Equal(t, "0.001", got.String())
}
