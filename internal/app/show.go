package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"moex-history/internal/model"
	"moex-history/internal/storage"
)

// Show prints the most recent persisted rows of one series.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	id, ok := model.NormalizeInstrument(opts.Ticker)
	if !ok {
		return errors.New("ticker is required")
	}
	kind := model.KindPrices
	if opts.Kind != "" {
		parsed, err := model.ParseKind(opts.Kind)
		if err != nil {
			return err
		}
		kind = parsed
	}

	reader := storage.NewCSVWriter(a.Config.Output.Dir, a.Logger)
	s, err := reader.Read(id, kind)
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(a.Out, "no %s stored for %s\n", kind, id)
		return nil
	}
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	start := 0
	if opts.Limit > 0 && s.Len() > opts.Limit {
		start = s.Len() - opts.Limit
	}

	switch kind {
	case model.KindDividends:
		fmt.Fprintln(writer, "Registry close\tValue\tCurrency")
		for _, rec := range s.Dividends[start:] {
			fmt.Fprintf(writer, "%s\t%s\t%s\n", sanitizeInline(rec.Date), formatDecimal(rec.Value), sanitizeInline(rec.Currency))
		}
	default:
		fmt.Fprintln(writer, "Trade date\tClose")
		for _, rec := range s.Prices[start:] {
			fmt.Fprintf(writer, "%s\t%s\n", sanitizeInline(rec.Date), formatDecimal(rec.Close))
		}
	}
	if err := writer.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(a.Out, "%d of %d rows from %s\n", s.Len()-start, s.Len(), reader.Path(id, kind))
	a.printMirrorCount(ctx, id, kind)
	return nil
}

func (a *App) printMirrorCount(ctx context.Context, id model.InstrumentID, kind model.Kind) {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("postgres mirror unavailable")
		return
	}
	if store == nil {
		return
	}
	defer closeStore()

	count, err := store.CountRows(ctx, id, kind)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("count mirrored rows")
		return
	}
	fmt.Fprintf(a.Out, "postgres mirror: %d rows\n", count)
}

func formatDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return d.Decimal.String()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
