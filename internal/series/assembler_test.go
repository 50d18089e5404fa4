package series

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"moex-history/internal/fetcher"
	"moex-history/internal/model"
)

func pricePage(n, start int) model.Page {
	page := model.Page{Kind: model.KindPrices}
	for i := 0; i < n; i++ {
		page.Prices = append(page.Prices, model.PriceRecord{Date: fmt.Sprintf("row-%05d", start+i)})
	}
	return page
}

func TestAssembleFullStopsOnShortPage(t *testing.T) {
	for _, p := range []int{1, 7, 100} {
		t.Run(fmt.Sprintf("page_size_%d", p), func(t *testing.T) {
			ctrl := gomock.NewController(t)
			f := NewMockPageFetcher(ctrl)
			// for p == 1 the tail is an empty page, still the fourth call
			k := p - 1

			gomock.InOrder(
				f.EXPECT().FetchPage(gomock.Any(), model.InstrumentID("SBER"), model.KindPrices, 0).Return(pricePage(p, 0), nil),
				f.EXPECT().FetchPage(gomock.Any(), model.InstrumentID("SBER"), model.KindPrices, p).Return(pricePage(p, p), nil),
				f.EXPECT().FetchPage(gomock.Any(), model.InstrumentID("SBER"), model.KindPrices, 2*p).Return(pricePage(p, 2*p), nil),
				f.EXPECT().FetchPage(gomock.Any(), model.InstrumentID("SBER"), model.KindPrices, 3*p).Return(pricePage(k, 3*p), nil),
			)

			a := NewAssembler(f, Options{PageSize: p}, zerolog.Nop())
			res := a.AssembleFull(context.Background(), "SBER", model.KindPrices)

			require.NoError(t, res.Err)
			require.Equal(t, 4, res.Pages)
			require.Equal(t, 3*p+k, res.Series.Len())
			for i, rec := range res.Series.Prices {
				require.Equal(t, fmt.Sprintf("row-%05d", i), rec.Date, "page order must be preserved")
			}
		})
	}
}

func TestAssembleFullFirstPageEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := NewMockPageFetcher(ctrl)
	f.EXPECT().FetchPage(gomock.Any(), model.InstrumentID("GMKN"), model.KindDividends, 0).
		Return(model.Page{Kind: model.KindDividends}, nil).Times(1)

	res := NewAssembler(f, Options{PageSize: 100}, zerolog.Nop()).AssembleFull(context.Background(), "GMKN", model.KindDividends)

	require.NoError(t, res.Err)
	require.Equal(t, 1, res.Pages)
	require.True(t, res.Series.Empty())
	require.Equal(t, model.KindDividends, res.Series.Kind)
}

func TestAssembleFullPageCapBoundsInfiniteSource(t *testing.T) {
	const pageSize, maxPages = 10, 25

	ctrl := gomock.NewController(t)
	f := NewMockPageFetcher(ctrl)
	calls := 0
	f.EXPECT().FetchPage(gomock.Any(), gomock.Any(), model.KindPrices, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ model.InstrumentID, _ model.Kind, offset int) (model.Page, error) {
			calls++
			return pricePage(pageSize, offset), nil
		}).Times(maxPages)

	res := NewAssembler(f, Options{PageSize: pageSize, MaxPages: maxPages}, zerolog.Nop()).
		AssembleFull(context.Background(), "SBER", model.KindPrices)

	require.Equal(t, maxPages, calls)
	require.Equal(t, maxPages*pageSize, res.Series.Len())
	require.True(t, res.Truncated())
	require.ErrorIs(t, res.Err, fetcher.ErrPageLimit)
	require.Equal(t, fetcher.ReasonPageLimit, fetcher.ReasonOf(res.Err))
}

func TestAssembleFullFetchErrorTruncates(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := NewMockPageFetcher(ctrl)
	boom := &fetcher.FetchError{Ticker: "SBER", Kind: model.KindPrices, Offset: 100, Reason: fetcher.ReasonDecode, Err: errors.New("bad json")}

	gomock.InOrder(
		f.EXPECT().FetchPage(gomock.Any(), gomock.Any(), model.KindPrices, 0).Return(pricePage(100, 0), nil),
		f.EXPECT().FetchPage(gomock.Any(), gomock.Any(), model.KindPrices, 100).Return(model.Page{Kind: model.KindPrices}, boom),
	)

	res := NewAssembler(f, Options{PageSize: 100}, zerolog.Nop()).AssembleFull(context.Background(), "SBER", model.KindPrices)

	require.Equal(t, 100, res.Series.Len(), "rows fetched before the failure are kept")
	require.Equal(t, 2, res.Pages)
	require.ErrorIs(t, res.Err, boom)
}

func TestAssembleFullFirstPageErrorIsEmpty(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := NewMockPageFetcher(ctrl)
	f.EXPECT().FetchPage(gomock.Any(), gomock.Any(), model.KindDividends, 0).
		Return(model.Page{}, &fetcher.FetchError{Reason: fetcher.ReasonStatus, StatusCode: 502})

	res := NewAssembler(f, Options{PageSize: 100}, zerolog.Nop()).AssembleFull(context.Background(), "SBER", model.KindDividends)

	require.True(t, res.Series.Empty())
	require.Equal(t, fetcher.ReasonStatus, fetcher.ReasonOf(res.Err))
}

func dividendPage(n int) model.Page {
	page := model.Page{Kind: model.KindDividends}
	for i := 0; i < n; i++ {
		page.Dividends = append(page.Dividends, model.DividendRecord{Date: fmt.Sprintf("div-%03d", i), Currency: "RUB"})
	}
	return page
}

func TestAssembleFullDividendsSingleRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := NewMockPageFetcher(ctrl)
	// 分红接口一次返回全部记录, 行数可以超过 PageSize
	f.EXPECT().FetchPage(gomock.Any(), model.InstrumentID("SBER"), model.KindDividends, 0).
		Return(dividendPage(120), nil).Times(1)

	res := NewAssembler(f, Options{PageSize: 100, MaxPages: 5000}, zerolog.Nop()).
		AssembleFull(context.Background(), "SBER", model.KindDividends)

	require.NoError(t, res.Err)
	require.Equal(t, 1, res.Pages)
	require.Equal(t, 120, res.Series.Len())
}

func TestAssembleFullRejectsOversizedPage(t *testing.T) {
	ctrl := gomock.NewController(t)
	f := NewMockPageFetcher(ctrl)
	gomock.InOrder(
		f.EXPECT().FetchPage(gomock.Any(), gomock.Any(), model.KindPrices, 0).Return(pricePage(100, 0), nil),
		f.EXPECT().FetchPage(gomock.Any(), gomock.Any(), model.KindPrices, 100).Return(pricePage(120, 100), nil),
	)

	res := NewAssembler(f, Options{PageSize: 100, MaxPages: 5000}, zerolog.Nop()).
		AssembleFull(context.Background(), "SBER", model.KindPrices)

	require.Equal(t, 2, res.Pages, "no further pages after an oversized one")
	require.Equal(t, 100, res.Series.Len(), "oversized page is not appended")
	require.True(t, res.Truncated())
	require.ErrorIs(t, res.Err, fetcher.ErrOversizedPage)
	require.Equal(t, fetcher.ReasonSchema, fetcher.ReasonOf(res.Err))
}
