package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"moex-history/internal/model"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	createDividendsSQL = `CREATE TABLE IF NOT EXISTS dividends (
        ticker       TEXT        NOT NULL,
        position     INTEGER     NOT NULL,
        record_date  DATE,
        value        NUMERIC,
        currency     TEXT        NOT NULL DEFAULT '',
        stored_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (ticker, position)
    );`

	createPricesSQL = `CREATE TABLE IF NOT EXISTS prices (
        ticker      TEXT        NOT NULL,
        position    INTEGER     NOT NULL,
        trade_date  DATE,
        close       NUMERIC,
        stored_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (ticker, position)
    );`

	deleteDividendsSQL = `DELETE FROM dividends WHERE ticker = $1;`
	deletePricesSQL    = `DELETE FROM prices WHERE ticker = $1;`

	insertDividendSQL = `INSERT INTO dividends (
        ticker,
        position,
        record_date,
        value,
        currency
    ) VALUES (
        $1,$2,$3,$4,$5
    );`

	insertPriceSQL = `INSERT INTO prices (
        ticker,
        position,
        trade_date,
        close
    ) VALUES (
        $1,$2,$3,$4
    );`

	countRowsSQL = `SELECT COUNT(*) FROM %s WHERE ticker = $1;`
)

// Store mirrors persisted series into PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// EnsureSchema creates the series tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range []string{createDividendsSQL, createPricesSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Persist replaces every stored row of the series' ticker and kind in one
// transaction, mirroring the overwrite semantics of the CSV files.
func (s *Store) Persist(ctx context.Context, series model.Series) (string, error) {
	if series.Empty() {
		return "", nil
	}
	table := tableFor(series.Kind)
	location := fmt.Sprintf("postgres:%s/%s", table, series.Instrument)

	pool, err := s.getPool()
	if err != nil {
		return "", &PersistError{Ticker: series.Instrument, Kind: series.Kind, Path: location, Err: err}
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		ticker := series.Instrument.String()

		if series.Kind == model.KindDividends {
			batch.Queue(deleteDividendsSQL, ticker)
			for i, rec := range series.Dividends {
				batch.Queue(insertDividendSQL, ticker, i, nullableDate(rec.Date), nullableDecimal(rec.Value), rec.Currency)
			}
		} else {
			batch.Queue(deletePricesSQL, ticker)
			for i, rec := range series.Prices {
				batch.Queue(insertPriceSQL, ticker, i, nullableDate(rec.Date), nullableDecimal(rec.Close))
			}
		}

		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("batch statement %d: %w", i, err)
			}
		}
		return results.Close()
	})
	if err != nil {
		return "", &PersistError{Ticker: series.Instrument, Kind: series.Kind, Path: location, Err: err}
	}
	return location, nil
}

// CountRows returns how many rows are stored for (ticker, kind).
func (s *Store) CountRows(ctx context.Context, id model.InstrumentID, kind model.Kind) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, fmt.Sprintf(countRowsSQL, tableFor(kind)), id.String()).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count rows: %w", scanErr)
	}
	return count, nil
}

func tableFor(kind model.Kind) string {
	if kind == model.KindDividends {
		return "dividends"
	}
	return "prices"
}

func nullableDate(d string) interface{} {
	if d == "" {
		return nil
	}
	return d
}

func nullableDecimal(d decimal.NullDecimal) interface{} {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

var _ Persister = (*Store)(nil)
