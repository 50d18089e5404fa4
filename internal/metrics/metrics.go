// Package metrics registers the Prometheus collectors shared by the fetch
// pipeline. Collectors are registered on the default registry via promauto.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Batches counts completed batch runs.
	Batches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moexhistory_batches_total",
			Help: "Total number of completed batch runs",
		},
	)

	// Instruments counts per-instrument outcomes by status.
	Instruments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moexhistory_instruments_total",
			Help: "Processed instruments by outcome status",
		},
		[]string{"status"},
	)

	// PagesFetched counts ISS pages decoded successfully.
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moexhistory_pages_fetched_total",
			Help: "ISS pages fetched by series kind",
		},
		[]string{"kind"},
	)

	// FetchErrors counts failed page fetches by kind and reason.
	FetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moexhistory_fetch_errors_total",
			Help: "Failed ISS page fetches by series kind and reason",
		},
		[]string{"kind", "reason"},
	)

	// SlotsInUse tracks instruments currently holding a fetch slot.
	SlotsInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "moexhistory_fetch_slots_in_use",
			Help: "Instruments currently holding a fetch slot",
		},
	)

	// PersistDuration observes how long a single series write takes.
	PersistDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moexhistory_persist_duration_seconds",
			Help:    "Duration of series persistence by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// PageCache counts page cache lookups by result (hit, miss, error).
	PageCache = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moexhistory_page_cache_total",
			Help: "Page cache lookups by result",
		},
		[]string{"result"},
	)
)

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
