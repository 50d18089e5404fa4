package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"moex-history/internal/model"
	"moex-history/internal/storage"
)

const issDateLayout = "2006-01-02"

// point is one dated value ready for plotting.
type point struct {
	At    time.Time
	Value float64
}

// Chart renders the stored closing prices of one ticker as PNG, with
// dividend values on the secondary axis when there are enough of them.
func (a *App) Chart(ctx context.Context, opts ChartOptions) error {
	id, ok := model.NormalizeInstrument(opts.Ticker)
	if !ok {
		return errors.New("ticker is required")
	}

	reader := storage.NewCSVWriter(a.Config.Output.Dir, a.Logger)
	prices, err := reader.Read(id, model.KindPrices)
	if err != nil {
		return fmt.Errorf("read prices for %s: %w", id, err)
	}
	closes := pricePoints(prices)
	if len(closes) < 2 {
		return fmt.Errorf("%s has %d plottable closes; need at least 2", id, len(closes))
	}

	var payouts []point
	dividends, err := reader.Read(id, model.KindDividends)
	switch {
	case err == nil:
		payouts = dividendPoints(dividends)
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("read dividends for %s: %w", id, err)
	}

	closes = downsample(closes, opts.MaxPoints)
	path := opts.PNGPath
	if path == "" {
		path = filepath.Join(a.Config.Output.Dir, fmt.Sprintf("%s_prices.png", id))
	}

	a.Logger.Info().Str("ticker", id.String()).Int("closes", len(closes)).Int("dividends", len(payouts)).Str("path", path).Msg("rendering chart")
	return a.writePNG(path, id, closes, payouts)
}

func pricePoints(s model.Series) []point {
	out := make([]point, 0, len(s.Prices))
	for _, rec := range s.Prices {
		at, err := time.Parse(issDateLayout, rec.Date)
		if err != nil || !rec.Close.Valid {
			continue
		}
		out = append(out, point{At: at, Value: rec.Close.Decimal.InexactFloat64()})
	}
	return out
}

func dividendPoints(s model.Series) []point {
	out := make([]point, 0, len(s.Dividends))
	for _, rec := range s.Dividends {
		at, err := time.Parse(issDateLayout, rec.Date)
		if err != nil || !rec.Value.Valid {
			continue
		}
		out = append(out, point{At: at, Value: rec.Value.Decimal.InexactFloat64()})
	}
	return out
}

func downsample(points []point, max int) []point {
	if max <= 1 || len(points) <= max {
		return points
	}

	result := make([]point, 0, max)
	step := float64(len(points)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(points) {
			idx = len(points) - 1
		}
		result = append(result, points[idx])
	}
	return result
}

func splitPoints(points []point) ([]time.Time, []float64) {
	x := make([]time.Time, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i] = p.At
		y[i] = p.Value
	}
	return x, y
}

func (a *App) writePNG(path string, id model.InstrumentID, closes, payouts []point) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	valueFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}

	x, y := splitPoints(closes)
	series := []chart.Series{
		chart.TimeSeries{
			Name:    fmt.Sprintf("%s close", id),
			XValues: x,
			YValues: y,
		},
	}

	graph := chart.Chart{
		Width:  a.Config.Chart.Width,
		Height: a.Config.Chart.Height,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Close",
			ValueFormatter: valueFormatter,
		},
	}

	// go-chart cannot range a secondary axis over a single value.
	if len(payouts) >= 2 {
		dx, dy := splitPoints(payouts)
		series = append(series, chart.TimeSeries{
			Name:    "Dividend",
			XValues: dx,
			YValues: dy,
			YAxis:   chart.YAxisSecondary,
		})
		graph.YAxisSecondary = chart.YAxis{
			Name:           "Dividend",
			ValueFormatter: valueFormatter,
		}
	}

	graph.Series = series
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
