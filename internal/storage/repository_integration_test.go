//go:build integration

package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"moex-history/internal/config"
	"moex-history/internal/model"
)

func setupPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "moex",
				"POSTGRES_PASSWORD": "moex",
				"POSTGRES_DB":       "history",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Postgres container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Postgres endpoint: %v", err)
	}
	return fmt.Sprintf("postgres://moex:moex@%s/history?sslmode=disable", endpoint)
}

func TestStore_Integration_ReplacesSeries(t *testing.T) {
	dsn := setupPostgres(t)
	ctx := context.Background()

	store, err := Open(ctx, config.DatabaseConfig{DSN: dsn, MaxOpenConns: 2})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	long := model.NewSeries("SBER", model.KindPrices)
	for i := 0; i < 150; i++ {
		long.Prices = append(long.Prices, model.PriceRecord{
			Date:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i).Format("2006-01-02"),
			Close: decimal.NewNullDecimal(decimal.NewFromInt(int64(250 + i))),
		})
	}
	long.Prices[3].Close = decimal.NullDecimal{}

	loc, err := store.Persist(ctx, long)
	if err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	if loc != "postgres:prices/SBER" {
		t.Errorf("Persist() location = %s", loc)
	}

	short := model.NewSeries("SBER", model.KindPrices)
	short.Prices = long.Prices[:2]
	if _, err := store.Persist(ctx, short); err != nil {
		t.Fatalf("Persist() overwrite error = %v", err)
	}

	count, err := store.CountRows(ctx, "SBER", model.KindPrices)
	if err != nil {
		t.Fatalf("CountRows() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountRows() = %d, want 2 after overwrite", count)
	}

	divs := model.NewSeries("SBER", model.KindDividends)
	divs.Dividends = []model.DividendRecord{{Date: "2023-05-11", Value: decimal.NewNullDecimal(decimal.RequireFromString("25")), Currency: "RUB"}}
	if _, err := store.Persist(ctx, divs); err != nil {
		t.Fatalf("Persist() dividends error = %v", err)
	}
	if count, _ := store.CountRows(ctx, "SBER", model.KindDividends); count != 1 {
		t.Errorf("CountRows(dividends) = %d, want 1", count)
	}
}

func TestStore_NotConfigured(t *testing.T) {
	if _, err := Open(context.Background(), config.DatabaseConfig{}); err != ErrNotConfigured {
		t.Fatalf("Open() without dsn = %v, want ErrNotConfigured", err)
	}
	var s *Store
	if _, err := s.CountRows(context.Background(), "SBER", model.KindPrices); err != ErrNotConfigured {
		t.Fatalf("CountRows() on nil store = %v", err)
	}
}
