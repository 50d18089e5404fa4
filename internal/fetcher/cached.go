package fetcher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"moex-history/internal/metrics"
	"moex-history/internal/model"
)

// PageCache stores encoded pages by key.
type PageCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Cached memoises full pages of an underlying fetcher. A full page covers a
// closed window of history, so only paginated pages with exactly pageSize
// rows are stored; the short tail page and unpaginated series are always
// refetched. Keys include scope so pages of different boards never mix.
type Cached struct {
	next     PageFetcher
	cache    PageCache
	pageSize int
	scope    string
	logger   zerolog.Logger
}

// NewCached wraps next with cache. scope names the upstream market the pages
// belong to, e.g. ISS.Scope().
func NewCached(next PageFetcher, cache PageCache, pageSize int, scope string, logger zerolog.Logger) *Cached {
	return &Cached{
		next:     next,
		cache:    cache,
		pageSize: pageSize,
		scope:    scope,
		logger:   logger.With().Str("component", "page_cache").Logger(),
	}
}

// FetchPage serves from cache when possible, falling back to the wrapped fetcher.
func (c *Cached) FetchPage(ctx context.Context, id model.InstrumentID, kind model.Kind, offset int) (model.Page, error) {
	if !kind.Paginated() {
		return c.next.FetchPage(ctx, id, kind, offset)
	}
	key := pageKey(c.scope, id, kind, c.pageSize, offset)

	if raw, ok, err := c.cache.Get(ctx, key); err != nil {
		metrics.PageCache.WithLabelValues("error").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("page cache read failed")
	} else if ok {
		var page model.Page
		if err := json.Unmarshal(raw, &page); err == nil && page.Kind == kind {
			metrics.PageCache.WithLabelValues("hit").Inc()
			return page, nil
		}
		metrics.PageCache.WithLabelValues("error").Inc()
		c.logger.Warn().Str("key", key).Msg("discarding undecodable cached page")
	} else {
		metrics.PageCache.WithLabelValues("miss").Inc()
	}

	page, err := c.next.FetchPage(ctx, id, kind, offset)
	if err != nil {
		return page, err
	}

	if c.pageSize > 0 && page.Len() == c.pageSize {
		raw, err := json.Marshal(page)
		if err == nil {
			err = c.cache.Set(ctx, key, raw)
		}
		if err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("page cache write failed")
		}
	}
	return page, nil
}

func pageKey(scope string, id model.InstrumentID, kind model.Kind, pageSize, offset int) string {
	return fmt.Sprintf("page:%s:%s:%s:%d:%d", scope, kind, id, pageSize, offset)
}

var _ PageFetcher = (*Cached)(nil)
