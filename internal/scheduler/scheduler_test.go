package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSchedulerImmediateThenPeriodic(t *testing.T) {
	s := New(Options{Interval: 20 * time.Millisecond, Immediate: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runs int32
	err := s.Run(ctx, func(ctx context.Context, due time.Time) error {
		if atomic.AddInt32(&runs, 1) == 3 {
			cancel()
		}
		return errors.New("批次失败不应终止调度")
	})

	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, int32(3), atomic.LoadInt32(&runs))
}

func TestSchedulerStopsDuringStartupDelay(t *testing.T) {
	s := New(Options{Interval: time.Hour, StartupDelay: time.Hour, Immediate: true}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	called := false
	err := s.Run(ctx, func(context.Context, time.Time) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.False(t, called)
}

func TestSchedulerAlignedSlots(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())
	now := time.Date(2024, 3, 1, 10, 15, 0, 0, time.UTC)

	require.Equal(t, time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC), s.nextSlot(now))
	require.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), s.nextSlot(now.Add(45*time.Minute)))
	require.Equal(t, time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC), s.slotStart(now))
}

func TestSchedulerRejectsNonPositiveInterval(t *testing.T) {
	require.Panics(t, func() { New(Options{}, zerolog.Nop()) })
}
