package storage

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"moex-history/internal/model"
)

var (
	dividendHeader = []string{"date", "value", "currency"}
	priceHeader    = []string{"date", "close"}
)

// Header returns the fixed CSV header for a series kind.
func Header(kind model.Kind) []string {
	if kind == model.KindDividends {
		return slices.Clone(dividendHeader)
	}
	return slices.Clone(priceHeader)
}

// CSVWriter stores each series as {dir}/{TICKER}_{kind}.csv.
type CSVWriter struct {
	dir    string
	logger zerolog.Logger
}

// NewCSVWriter constructs a CSV persister rooted at dir.
func NewCSVWriter(dir string, logger zerolog.Logger) *CSVWriter {
	return &CSVWriter{dir: dir, logger: logger.With().Str("component", "csv_writer").Logger()}
}

// Path returns the deterministic file name for (id, kind).
func (w *CSVWriter) Path(id model.InstrumentID, kind model.Kind) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.csv", id, kind))
}

// Persist overwrites the series file. The file is written to a temp name and
// renamed so readers never observe a partial file.
func (w *CSVWriter) Persist(ctx context.Context, s model.Series) (string, error) {
	if s.Empty() {
		return "", nil
	}
	path := w.Path(s.Instrument, s.Kind)
	wrap := func(err error) error {
		return &PersistError{Ticker: s.Instrument, Kind: s.Kind, Path: path, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return "", wrap(err)
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", wrap(err)
	}

	tmp, err := os.CreateTemp(w.dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", wrap(err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := writeSeries(tmp, s); err != nil {
		tmp.Close()
		cleanup()
		return "", wrap(err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", wrap(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return "", wrap(err)
	}

	w.logger.Info().Str("ticker", s.Instrument.String()).Str("kind", s.Kind.String()).
		Int("records", s.Len()).Str("path", path).Msg("series saved")
	return path, nil
}

func writeSeries(out io.Writer, s model.Series) error {
	writer := csv.NewWriter(out)
	if err := writer.Write(Header(s.Kind)); err != nil {
		return err
	}

	switch s.Kind {
	case model.KindDividends:
		for _, rec := range s.Dividends {
			if err := writer.Write([]string{rec.Date, formatNull(rec.Value), rec.Currency}); err != nil {
				return err
			}
		}
	case model.KindPrices:
		for _, rec := range s.Prices {
			if err := writer.Write([]string{rec.Date, formatNull(rec.Close)}); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// Read loads a previously persisted series.
func (w *CSVWriter) Read(id model.InstrumentID, kind model.Kind) (model.Series, error) {
	s := model.NewSeries(id, kind)
	path := w.Path(id, kind)

	file, err := os.Open(path)
	if err != nil {
		return s, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return s, fmt.Errorf("%s: empty file", path)
		}
		return s, fmt.Errorf("%s: %w", path, err)
	}
	if !slices.Equal(header, Header(kind)) {
		return s, fmt.Errorf("%s: unexpected header %s", path, strings.Join(header, ","))
	}

	for line := 2; ; line++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return s, fmt.Errorf("%s: %w", path, err)
		}

		value, err := parseNull(row[1])
		if err != nil {
			return s, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		if kind == model.KindDividends {
			s.Dividends = append(s.Dividends, model.DividendRecord{Date: row[0], Value: value, Currency: row[2]})
		} else {
			s.Prices = append(s.Prices, model.PriceRecord{Date: row[0], Close: value})
		}
	}
	return s, nil
}

func formatNull(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

func parseNull(s string) (decimal.NullDecimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

var _ Persister = (*CSVWriter)(nil)
