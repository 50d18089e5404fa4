package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// InstrumentID is a normalised (trimmed, upper-case) ticker.
type InstrumentID string

// NormalizeInstrument trims and upper-cases raw, reporting false for blanks.
func NormalizeInstrument(raw string) (InstrumentID, bool) {
	id := strings.ToUpper(strings.TrimSpace(raw))
	if id == "" {
		return "", false
	}
	return InstrumentID(id), true
}

func (id InstrumentID) String() string { return string(id) }

// Kind selects which history of an instrument is fetched and stored.
type Kind string

const (
	KindDividends Kind = "dividends"
	KindPrices    Kind = "prices"
)

// Kinds lists every series kind in processing order.
var Kinds = []Kind{KindDividends, KindPrices}

// ParseKind validates a textual series kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindDividends:
		return KindDividends, nil
	case KindPrices:
		return KindPrices, nil
	}
	return "", fmt.Errorf("unknown series kind %q", s)
}

func (k Kind) String() string { return string(k) }

// Paginated reports whether the series is served in offset pages. The
// dividend history comes back whole from a single request.
func (k Kind) Paginated() bool { return k == KindPrices }

// DividendRecord is one row of the dividend history. Value stays invalid when
// the source reports null.
type DividendRecord struct {
	Date     string
	Value    decimal.NullDecimal
	Currency string
}

// PriceRecord is one trading day of closing prices.
type PriceRecord struct {
	Date  string
	Close decimal.NullDecimal
}

// Page is one bounded response chunk. Only the slice matching Kind is populated.
type Page struct {
	Kind      Kind
	Dividends []DividendRecord
	Prices    []PriceRecord
}

// Len returns the number of rows on the page.
func (p Page) Len() int {
	if p.Kind == KindDividends {
		return len(p.Dividends)
	}
	return len(p.Prices)
}

// Series is every page for one (instrument, kind) concatenated in page order.
type Series struct {
	Instrument InstrumentID
	Kind       Kind
	Dividends  []DividendRecord
	Prices     []PriceRecord
}

// NewSeries returns an empty series.
func NewSeries(id InstrumentID, kind Kind) Series {
	return Series{Instrument: id, Kind: kind}
}

// Append adds the rows of p to the series without re-sorting.
func (s *Series) Append(p Page) {
	switch s.Kind {
	case KindDividends:
		s.Dividends = append(s.Dividends, p.Dividends...)
	case KindPrices:
		s.Prices = append(s.Prices, p.Prices...)
	}
}

// Len returns the number of records in the series.
func (s Series) Len() int {
	if s.Kind == KindDividends {
		return len(s.Dividends)
	}
	return len(s.Prices)
}

// Empty reports whether the series holds no records.
func (s Series) Empty() bool { return s.Len() == 0 }
