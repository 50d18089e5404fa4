package fetcher

import (
	"context"
	"errors"
	"fmt"

	"moex-history/internal/model"
)

// PageFetcher issues one bounded request for an instrument's series at a
// zero-based row offset. An empty page means there is no more data.
type PageFetcher interface {
	FetchPage(ctx context.Context, id model.InstrumentID, kind model.Kind, offset int) (model.Page, error)
}

// Reason classifies a FetchError.
type Reason string

const (
	ReasonTransport Reason = "transport"
	ReasonStatus    Reason = "status"
	ReasonDecode    Reason = "decode"
	ReasonSchema    Reason = "schema"
	ReasonPageLimit Reason = "page_limit"
)

var (
	// ErrMissingSection is returned when the response lacks the expected table.
	ErrMissingSection = errors.New("response section missing")
	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = errors.New("required column missing")
	// ErrPageLimit is returned when pagination exceeds the configured page cap.
	ErrPageLimit = errors.New("page limit exceeded")
	// ErrOversizedPage is returned when a page holds more rows than the page size.
	ErrOversizedPage = errors.New("page larger than page size")
)

// FetchError describes a page that could not be fetched or decoded.
type FetchError struct {
	Ticker     model.InstrumentID
	Kind       model.Kind
	Offset     int
	Reason     Reason
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s %s at offset %d: %s", e.Ticker, e.Kind, e.Offset, e.Reason)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// ReasonOf extracts the FetchError reason, or "unknown".
func ReasonOf(err error) Reason {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return "unknown"
}
