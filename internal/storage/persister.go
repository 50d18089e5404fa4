package storage

import (
	"context"
	"errors"
	"fmt"

	"moex-history/internal/model"
)

// Persister writes one completed series to durable storage and returns where
// it landed. An empty series is a no-op that creates nothing.
type Persister interface {
	Persist(ctx context.Context, s model.Series) (string, error)
}

// PersistError wraps an I/O failure while storing one series.
type PersistError struct {
	Ticker model.InstrumentID
	Kind   model.Kind
	Path   string
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s %s to %s: %v", e.Ticker, e.Kind, e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// IsPersistError reports whether err came from a Persister.
func IsPersistError(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe)
}

// Fanout writes to a primary persister and then to every mirror. The primary
// location is returned; the first mirror failure is reported.
type Fanout struct {
	Primary Persister
	Mirrors []Persister
}

// Persist implements Persister.
func (f Fanout) Persist(ctx context.Context, s model.Series) (string, error) {
	loc, err := f.Primary.Persist(ctx, s)
	if err != nil {
		return "", err
	}
	for _, m := range f.Mirrors {
		if _, err := m.Persist(ctx, s); err != nil {
			return loc, err
		}
	}
	return loc, nil
}

var _ Persister = Fanout{}
