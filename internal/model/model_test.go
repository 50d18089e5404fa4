package model

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestNormalizeInstrument(t *testing.T) {
	cases := []struct {
		raw  string
		want InstrumentID
		ok   bool
	}{
		{"SBER", "SBER", true},
		{" gmkn ", "GMKN", true},
		{"\tLkoh\r", "LKOH", true},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeInstrument(tc.raw)
		require.Equal(t, tc.ok, ok, tc.raw)
		require.Equal(t, tc.want, got, tc.raw)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Prices ")
	require.NoError(t, err)
	require.Equal(t, KindPrices, k)

	_, err = ParseKind("quotes")
	require.Error(t, err)
}

func TestSeriesAppendKeepsPageOrder(t *testing.T) {
	s := NewSeries("SBER", KindPrices)
	s.Append(Page{Kind: KindPrices, Prices: []PriceRecord{{Date: "2024-01-02"}, {Date: "2024-01-03"}}})
	s.Append(Page{Kind: KindPrices, Prices: []PriceRecord{{Date: "2024-01-04", Close: decimal.NewNullDecimal(decimal.RequireFromString("270.5"))}}})

	require.Equal(t, 3, s.Len())
	require.Equal(t, "2024-01-04", s.Prices[2].Date)
	require.False(t, s.Prices[0].Close.Valid)
	require.Empty(t, s.Dividends)
}

func TestKindPaginated(t *testing.T) {
	require.True(t, KindPrices.Paginated())
	require.False(t, KindDividends.Paginated())
}
