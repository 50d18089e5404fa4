package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"moex-history/internal/metrics"
	"moex-history/internal/model"
	"moex-history/internal/version"
)

const defaultISSBaseURL = "https://iss.moex.com/iss"

// ISSOptions parameterise the MOEX ISS fetcher.
type ISSOptions struct {
	BaseURL   string
	Engine    string
	Market    string
	Board     string
	Timeout   time.Duration
	UserAgent string
}

// ISS fetches dividend and price history pages from the MOEX ISS API.
type ISS struct {
	opts    ISSOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewISS constructs an ISS fetcher.
func NewISS(opts ISSOptions, logger zerolog.Logger) *ISS {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultISSBaseURL
	}
	if opts.Engine == "" {
		opts.Engine = "stock"
	}
	if opts.Market == "" {
		opts.Market = "shares"
	}
	if opts.Board == "" {
		opts.Board = "TQBR"
	}

	return &ISS{
		opts:    opts,
		logger:  logger.With().Str("component", "iss_fetcher").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchPage requests one page of the given series starting at offset.
func (c *ISS) FetchPage(ctx context.Context, id model.InstrumentID, kind model.Kind, offset int) (model.Page, error) {
	page, err := c.fetchPage(ctx, id, kind, offset)
	if err != nil {
		metrics.FetchErrors.WithLabelValues(kind.String(), string(ReasonOf(err))).Inc()
		return model.Page{Kind: kind}, err
	}
	metrics.PagesFetched.WithLabelValues(kind.String()).Inc()
	return page, nil
}

func (c *ISS) fetchPage(ctx context.Context, id model.InstrumentID, kind model.Kind, offset int) (model.Page, error) {
	fail := func(reason Reason, status int, err error) (model.Page, error) {
		return model.Page{}, &FetchError{Ticker: id, Kind: kind, Offset: offset, Reason: reason, StatusCode: status, Err: err}
	}

	endpoint, section, err := c.endpoint(id, kind)
	if err != nil {
		return fail(ReasonTransport, 0, err)
	}

	query := url.Values{}
	query.Set("iss.meta", "off")
	if kind.Paginated() {
		query.Set("start", strconv.Itoa(offset))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return fail(ReasonTransport, 0, err)
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	c.logger.Debug().Str("ticker", id.String()).Str("kind", kind.String()).Int("offset", offset).Msg("requesting page")

	resp, err := c.client.Do(req)
	if err != nil {
		return fail(ReasonTransport, 0, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(ReasonTransport, resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK {
		return fail(ReasonStatus, resp.StatusCode, parseHTTPError(resp.StatusCode, payload))
	}

	tbl, err := decodeSection(payload, section)
	if err != nil {
		if err == ErrMissingSection {
			return fail(ReasonSchema, resp.StatusCode, err)
		}
		return fail(ReasonDecode, resp.StatusCode, err)
	}

	var page model.Page
	switch kind {
	case model.KindDividends:
		page, err = tbl.dividends()
	default:
		page, err = tbl.prices()
	}
	if err != nil {
		return fail(classify(err), resp.StatusCode, err)
	}
	return page, nil
}

// Scope identifies the engine, market and board price pages come from.
func (c *ISS) Scope() string {
	return fmt.Sprintf("%s/%s/%s", c.opts.Engine, c.opts.Market, c.opts.Board)
}

func (c *ISS) endpoint(id model.InstrumentID, kind model.Kind) (string, string, error) {
	ticker := url.PathEscape(id.String())
	switch kind {
	case model.KindDividends:
		return fmt.Sprintf("%s/securities/%s/dividends.json", c.baseURL, ticker), "dividends", nil
	case model.KindPrices:
		return fmt.Sprintf("%s/history/engines/%s/markets/%s/boards/%s/securities/%s.json",
			c.baseURL, c.opts.Engine, c.opts.Market, c.opts.Board, ticker), "history", nil
	}
	return "", "", fmt.Errorf("unsupported series kind %q", kind)
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		if apiErr.Error != "" {
			return fmt.Errorf("iss api error (%d): %s", status, apiErr.Error)
		}
		if apiErr.Message != "" {
			return fmt.Errorf("iss api error (%d): %s", status, apiErr.Message)
		}
	}
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 {
		if len(trimmed) > 256 {
			trimmed = trimmed[:256]
		}
		return fmt.Errorf("iss api error (%d): %s", status, string(trimmed))
	}
	return fmt.Errorf("iss api error (%d)", status)
}

var _ PageFetcher = (*ISS)(nil)
