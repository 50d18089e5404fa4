package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestCollectorsCount(t *testing.T) {
	before := testutil.ToFloat64(FetchErrors.WithLabelValues("prices", "status"))
	FetchErrors.WithLabelValues("prices", "status").Inc()
	require.Equal(t, before+1, testutil.ToFloat64(FetchErrors.WithLabelValues("prices", "status")))

	SlotsInUse.Inc()
	SlotsInUse.Dec()
	require.Zero(t, testutil.ToFloat64(SlotsInUse))
}

func TestServeStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", zerolog.Nop()) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
