package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"moex-history/internal/metrics"
	"moex-history/internal/model"
	"moex-history/internal/series"
	"moex-history/internal/storage"
	"moex-history/internal/tickers"
	"moex-history/internal/workpool"
)

// SeriesAssembler builds one complete series for an instrument.
type SeriesAssembler interface {
	AssembleFull(ctx context.Context, id model.InstrumentID, kind model.Kind) series.Result
}

// Options bound batch parallelism.
type Options struct {
	// Concurrency is the number of instruments allowed to hold a fetch slot.
	Concurrency int
	// PersistWorkers is the size of the persistence worker pool.
	PersistWorkers int
}

// Orchestrator schedules instruments through fetching and persistence.
type Orchestrator struct {
	assembler SeriesAssembler
	persister storage.Persister
	opts      Options
	logger    zerolog.Logger
}

// New constructs the orchestrator.
func New(assembler SeriesAssembler, persister storage.Persister, opts Options, logger zerolog.Logger) *Orchestrator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.PersistWorkers <= 0 {
		opts.PersistWorkers = 1
	}
	return &Orchestrator{
		assembler: assembler,
		persister: persister,
		opts:      opts,
		logger:    logger.With().Str("component", "orchestrator").Logger(),
	}
}

// RunBatch processes every instrument of src. The fetch-slot semaphore and the
// persistence pool live only for this call. Cancelling ctx stops launching new
// instruments; those already holding a slot run to completion. A source that
// cannot be opened fails the batch before anything is launched.
func (o *Orchestrator) RunBatch(ctx context.Context, src tickers.Source) (Report, error) {
	report := Report{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	logger := o.logger.With().Str("run_id", report.RunID).Logger()

	stream, err := src.Open(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("instrument source unavailable")
		return report, err
	}
	defer stream.Close()

	logger.Info().Int("concurrency", o.opts.Concurrency).Int("persist_workers", o.opts.PersistWorkers).Msg("batch started")

	slots := semaphore.NewWeighted(int64(o.opts.Concurrency))
	pool := workpool.New(o.opts.PersistWorkers)
	unitCtx := context.WithoutCancel(ctx)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = make(map[int]Outcome)
		seen     = make(map[model.InstrumentID]struct{})
		launched int
		srcErr   error
	)

	for {
		if ctx.Err() != nil {
			report.Interrupted = true
			break
		}

		raw, ok, err := stream.Next()
		if err != nil {
			srcErr = err
			logger.Error().Err(err).Msg("instrument source read failed; no further instruments launched")
			break
		}
		if !ok {
			break
		}

		id, valid := model.NormalizeInstrument(raw)
		if !valid {
			continue
		}
		if _, dup := seen[id]; dup {
			logger.Warn().Str("ticker", id.String()).Msg("duplicate instrument skipped")
			continue
		}
		seen[id] = struct{}{}

		if err := slots.Acquire(ctx, 1); err != nil {
			report.Interrupted = true
			break
		}
		if ctx.Err() != nil {
			slots.Release(1)
			report.Interrupted = true
			break
		}
		metrics.SlotsInUse.Inc()

		idx := launched
		launched++
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				metrics.SlotsInUse.Dec()
				slots.Release(1)
			}()

			out := o.processInstrument(unitCtx, id, pool, logger)
			o.logOutcome(logger, out)

			mu.Lock()
			outcomes[idx] = out
			mu.Unlock()
		}()
	}

	if report.Interrupted {
		mu.Lock()
		inFlight := launched - len(outcomes)
		mu.Unlock()
		logger.Warn().Int("in_flight", inFlight).Msg("interrupt received; draining in-flight instruments")
	}

	wg.Wait()
	pool.Close()

	report.Outcomes = make([]Outcome, 0, launched)
	for i := 0; i < launched; i++ {
		report.Outcomes = append(report.Outcomes, outcomes[i])
	}
	report.Duration = time.Since(report.StartedAt)

	counts := report.Counts()
	metrics.Batches.Inc()
	logger.Info().
		Int("instruments", counts.Total()).
		Int("succeeded", counts.Succeeded).
		Int("no_data", counts.NoData).
		Int("partial", counts.Partial).
		Int("failed", counts.Failed).
		Bool("interrupted", report.Interrupted).
		Dur("duration", report.Duration).
		Msg("batch complete")

	return report, srcErr
}

// processInstrument runs dividends then prices through the assembler, then
// hands each non-empty series to the persistence pool. Any error or panic
// ends in StatusFailed without affecting other instruments.
func (o *Orchestrator) processInstrument(ctx context.Context, id model.InstrumentID, pool *workpool.Pool, logger zerolog.Logger) (out Outcome) {
	out = Outcome{
		Instrument: id,
		Records:    make(map[model.Kind]int, len(model.Kinds)),
		Locations:  make(map[model.Kind]string, len(model.Kinds)),
	}
	logger = logger.With().Str("ticker", id.String()).Logger()

	defer func() {
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Err = fmt.Errorf("panic while processing %s: %v", id, r)
		}
		metrics.Instruments.WithLabelValues(string(out.Status)).Inc()
	}()

	logger.Info().Msg("processing instrument")

	assembled := make([]series.Result, 0, len(model.Kinds))
	for _, kind := range model.Kinds {
		res := o.assembler.AssembleFull(ctx, id, kind)
		assembled = append(assembled, res)

		out.Records[kind] = res.Series.Len()
		if res.Truncated() {
			out.Truncated = append(out.Truncated, kind)
			if out.Err == nil {
				out.Err = res.Err
			}
		}
		if res.Series.Empty() {
			out.Empty = append(out.Empty, kind)
		}
	}

	for _, res := range assembled {
		if res.Series.Empty() {
			logger.Info().Str("kind", res.Series.Kind.String()).Msg("series empty; nothing to persist")
			continue
		}

		s := res.Series
		var location string
		started := time.Now()
		err := pool.Do(ctx, func() error {
			loc, err := o.persister.Persist(ctx, s)
			location = loc
			return err
		})
		metrics.PersistDuration.WithLabelValues(s.Kind.String()).Observe(time.Since(started).Seconds())
		if err != nil {
			out.Status = StatusFailed
			out.Err = err
			return out
		}
		out.Locations[s.Kind] = location
	}

	switch {
	case len(out.Truncated) > 0:
		out.Status = StatusPartial
	case len(out.Empty) == len(model.Kinds):
		out.Status = StatusNoData
	default:
		out.Status = StatusSucceeded
	}
	return out
}

func (o *Orchestrator) logOutcome(logger zerolog.Logger, out Outcome) {
	var event *zerolog.Event
	switch out.Status {
	case StatusFailed:
		event = logger.Error().Err(out.Err)
	case StatusPartial:
		event = logger.Warn().Err(out.Err)
	default:
		event = logger.Info()
	}
	event.Str("ticker", out.Instrument.String()).
		Str("status", string(out.Status)).
		Int("dividends", out.Records[model.KindDividends]).
		Int("prices", out.Records[model.KindPrices]).
		Msg("instrument finished")
}
