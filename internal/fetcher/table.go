package fetcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"moex-history/internal/model"
)

// ISS responses carry each table as an explicit column list plus row arrays.
type issTable struct {
	Columns []string `json:"columns"`
	Data    [][]any  `json:"data"`
}

var errMalformedRow = errors.New("malformed row")

func decodeSection(payload []byte, section string) (*issTable, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	raw, ok := doc[section]
	if !ok || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrMissingSection
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var tbl issTable
	if err := dec.Decode(&tbl); err != nil {
		return nil, fmt.Errorf("decode %s table: %w", section, err)
	}
	return &tbl, nil
}

func (t *issTable) indexes(names ...string) ([]int, error) {
	idx := make([]int, len(names))
	for i, name := range names {
		idx[i] = -1
		for j, col := range t.Columns {
			if strings.EqualFold(col, name) {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}
	return idx, nil
}

func (t *issTable) dividends() (model.Page, error) {
	page := model.Page{Kind: model.KindDividends}
	if len(t.Data) == 0 {
		return page, nil
	}

	idx, err := t.indexes("registryclosedate", "value", "currencyid")
	if err != nil {
		return page, err
	}

	page.Dividends = make([]model.DividendRecord, 0, len(t.Data))
	for n, row := range t.Data {
		if err := checkRow(row, idx, n); err != nil {
			return model.Page{Kind: model.KindDividends}, err
		}
		value, err := toNullDecimal(row[idx[1]])
		if err != nil {
			return model.Page{Kind: model.KindDividends}, fmt.Errorf("row %d value: %w", n, err)
		}
		page.Dividends = append(page.Dividends, model.DividendRecord{
			Date:     toString(row[idx[0]]),
			Value:    value,
			Currency: toString(row[idx[2]]),
		})
	}
	return page, nil
}

func (t *issTable) prices() (model.Page, error) {
	page := model.Page{Kind: model.KindPrices}
	if len(t.Data) == 0 {
		return page, nil
	}

	idx, err := t.indexes("TRADEDATE", "CLOSE")
	if err != nil {
		return page, err
	}

	page.Prices = make([]model.PriceRecord, 0, len(t.Data))
	for n, row := range t.Data {
		if err := checkRow(row, idx, n); err != nil {
			return model.Page{Kind: model.KindPrices}, err
		}
		closePrice, err := toNullDecimal(row[idx[1]])
		if err != nil {
			return model.Page{Kind: model.KindPrices}, fmt.Errorf("row %d close: %w", n, err)
		}
		page.Prices = append(page.Prices, model.PriceRecord{
			Date:  toString(row[idx[0]]),
			Close: closePrice,
		})
	}
	return page, nil
}

func checkRow(row []any, idx []int, n int) error {
	for _, i := range idx {
		if i >= len(row) {
			return fmt.Errorf("%w: row %d has %d cells", errMalformedRow, n, len(row))
		}
	}
	return nil
}

func classify(err error) Reason {
	if errors.Is(err, ErrMissingColumn) {
		return ReasonSchema
	}
	return ReasonDecode
}

func toNullDecimal(v any) (decimal.NullDecimal, error) {
	switch val := v.(type) {
	case nil:
		return decimal.NullDecimal{}, nil
	case json.Number:
		d, err := decimal.NewFromString(val.String())
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		return decimal.NewNullDecimal(d), nil
	case string:
		if strings.TrimSpace(val) == "" {
			return decimal.NullDecimal{}, nil
		}
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return decimal.NullDecimal{}, err
		}
		return decimal.NewNullDecimal(d), nil
	}
	return decimal.NullDecimal{}, fmt.Errorf("unexpected numeric cell %T", v)
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	}
	return fmt.Sprint(v)
}
