// Package series reassembles a complete instrument history from size-limited
// ISS pages.
package series

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"moex-history/internal/fetcher"
	"moex-history/internal/model"
)

//go:generate mockgen -package=series -destination=mock_page_fetcher_test.go moex-history/internal/fetcher PageFetcher

// Options tune pagination.
type Options struct {
	// PageSize is the row count of a full page; a shorter page is the last one.
	PageSize int
	// MaxPages caps the number of requests per series. Zero disables the cap.
	MaxPages int
}

// Result is an assembled series plus how it ended. Err is the FetchError that
// truncated the series, nil when pagination ran to a short or empty page.
type Result struct {
	Series model.Series
	Pages  int
	Err    error
}

// Truncated reports whether a fetch failure cut the series short.
func (r Result) Truncated() bool { return r.Err != nil }

// Assembler drives a PageFetcher until the pagination termination rule holds.
type Assembler struct {
	fetcher fetcher.PageFetcher
	opts    Options
	logger  zerolog.Logger
}

// NewAssembler constructs an Assembler.
func NewAssembler(f fetcher.PageFetcher, opts Options, logger zerolog.Logger) *Assembler {
	if opts.PageSize <= 0 {
		opts.PageSize = 100
	}
	if opts.MaxPages < 0 {
		opts.MaxPages = 0
	}
	return &Assembler{
		fetcher: f,
		opts:    opts,
		logger:  logger.With().Str("component", "assembler").Logger(),
	}
}

// AssembleFull fetches pages at offsets 0, P, 2P, ... and concatenates them.
// Unpaginated kinds stop after the first page. A page with more than P rows
// means the source ignored the offset and truncates the series. Fetch
// failures never escape: the accumulated rows are returned and the failure
// is reported in Result.Err.
func (a *Assembler) AssembleFull(ctx context.Context, id model.InstrumentID, kind model.Kind) Result {
	res := Result{Series: model.NewSeries(id, kind)}
	logger := a.logger.With().Str("ticker", id.String()).Str("kind", kind.String()).Logger()

	offset := 0
	for {
		if a.opts.MaxPages > 0 && res.Pages >= a.opts.MaxPages {
			res.Err = &fetcher.FetchError{
				Ticker: id,
				Kind:   kind,
				Offset: offset,
				Reason: fetcher.ReasonPageLimit,
				Err:    fmt.Errorf("%w: %d pages", fetcher.ErrPageLimit, a.opts.MaxPages),
			}
			logger.Error().Err(res.Err).Int("records", res.Series.Len()).Msg("page cap reached; series truncated")
			break
		}

		page, err := a.fetcher.FetchPage(ctx, id, kind, offset)
		res.Pages++
		if err != nil {
			res.Err = err
			logger.Error().Err(err).Int("offset", offset).Int("records", res.Series.Len()).Msg("page fetch failed; series truncated")
			break
		}

		n := page.Len()
		if n == 0 {
			break
		}
		if !kind.Paginated() {
			res.Series.Append(page)
			break
		}
		if n > a.opts.PageSize {
			res.Err = &fetcher.FetchError{
				Ticker: id,
				Kind:   kind,
				Offset: offset,
				Reason: fetcher.ReasonSchema,
				Err:    fmt.Errorf("%w: %d rows, page size %d", fetcher.ErrOversizedPage, n, a.opts.PageSize),
			}
			logger.Error().Err(res.Err).Int("records", res.Series.Len()).Msg("oversized page rejected; series truncated")
			break
		}
		res.Series.Append(page)
		if n < a.opts.PageSize {
			break
		}
		offset += a.opts.PageSize
	}

	logger.Info().Int("records", res.Series.Len()).Int("pages", res.Pages).Msg("series assembled")
	return res
}
