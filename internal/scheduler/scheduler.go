package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BatchFunc starts one batch for the slot beginning at due.
type BatchFunc func(ctx context.Context, due time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// Immediate runs one batch right after the startup delay instead of
	// waiting for the first slot.
	Immediate bool
}

// Scheduler triggers batches on a fixed cadence. Batches never overlap: a
// batch that outlives its interval causes the slots it covered to be skipped.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:   opts,
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run blocks, starting a batch at each slot until ctx is cancelled. A failed
// batch is logged and does not stop the loop.
func (s *Scheduler) Run(ctx context.Context, batch BatchFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	if s.opts.Immediate {
		s.trigger(ctx, batch, s.now())
	}

	next := s.nextSlot(s.now())
	for {
		if now := s.now(); next.Before(now) {
			skipped := int(now.Sub(next) / s.opts.Interval)
			next = s.nextSlot(now)
			s.logger.Warn().Int("skipped", skipped+1).Time("next_run", next).Msg("previous batch overran its interval; slots skipped")
		}

		s.logger.Debug().Time("next_run", next).Msg("waiting for next batch slot")
		if err := sleep(ctx, next.Sub(s.now())); err != nil {
			return err
		}

		s.trigger(ctx, batch, next)
		next = next.Add(s.opts.Interval)
	}
}

func (s *Scheduler) trigger(ctx context.Context, batch BatchFunc, due time.Time) {
	due = s.slotStart(due)
	s.logger.Info().Time("due", due).Msg("starting scheduled batch")
	if err := batch(ctx, due); err != nil {
		s.logger.Error().Err(err).Time("due", due).Msg("scheduled batch failed")
	}
}

func (s *Scheduler) nextSlot(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	slot := now.Truncate(s.opts.Interval)
	if !slot.After(now) {
		slot = slot.Add(s.opts.Interval)
	}
	return slot
}

func (s *Scheduler) slotStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
