package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"moex-history/internal/alerting"
	"moex-history/internal/cache"
	"moex-history/internal/config"
	"moex-history/internal/fetcher"
	"moex-history/internal/metrics"
	"moex-history/internal/scheduler"
	"moex-history/internal/series"
	"moex-history/internal/service"
	"moex-history/internal/storage"
	"moex-history/internal/tickers"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	// Out receives human-readable command output; defaults to stdout.
	Out io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

// BatchOptions carry the per-invocation overrides of fetch and run.
type BatchOptions struct {
	TickersFile string
	Tickers     string
	Concurrency int
	Workers     int
	OutputDir   string
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Ticker string
	Kind   string
	Limit  int
}

// ChartOptions configure the chart command.
type ChartOptions struct {
	Ticker    string
	PNGPath   string
	MaxPoints int
}

// pipeline is everything one batch needs, plus the resources to release.
type pipeline struct {
	orchestrator *service.Orchestrator
	closers      []func()
}

func (p *pipeline) close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
}

func (a *App) source(opts BatchOptions) tickers.Source {
	if list := tickers.ParseList(opts.Tickers); len(list) > 0 {
		return list
	}
	path := opts.TickersFile
	if path == "" {
		path = a.Config.Source.TickersFile
	}
	return tickers.NewFileSource(path)
}

func (a *App) newFetcher(ctx context.Context) (fetcher.PageFetcher, func(), error) {
	iss := fetcher.NewISS(fetcher.ISSOptions{
		BaseURL:   a.Config.ISS.BaseURL,
		Engine:    a.Config.ISS.Engine,
		Market:    a.Config.ISS.Market,
		Board:     a.Config.ISS.Board,
		Timeout:   a.Config.ISS.RequestTimeout,
		UserAgent: a.Config.ISS.UserAgent,
	}, a.Logger)

	cfg := a.Config.Cache
	if cfg.RedisAddr == "" {
		return iss, func() {}, nil
	}

	client, err := cache.Dial(ctx, cache.Options{Addr: cfg.RedisAddr, Password: cfg.Password, DB: cfg.DB})
	if err != nil {
		a.Logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("page cache unavailable; fetching without cache")
		return iss, func() {}, nil
	}

	pages := cache.NewPageCache(client, cfg.KeyPrefix, cfg.TTL)
	closer := func() { _ = client.Close() }
	return fetcher.NewCached(iss, pages, a.Config.Batch.PageSize, iss.Scope(), a.Logger), closer, nil
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	store, err := storage.Open(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newPipeline(ctx context.Context) (*pipeline, error) {
	p := &pipeline{}

	pages, closeFetcher, err := a.newFetcher(ctx)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, closeFetcher)

	var persister storage.Persister = storage.NewCSVWriter(a.Config.Output.Dir, a.Logger)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		p.close()
		return nil, err
	}
	if store != nil {
		p.closers = append(p.closers, closeStore)
		persister = storage.Fanout{Primary: persister, Mirrors: []storage.Persister{store}}
		a.Logger.Info().Msg("postgres mirror enabled")
	}

	assembler := series.NewAssembler(pages, series.Options{
		PageSize: a.Config.Batch.PageSize,
		MaxPages: a.Config.Batch.MaxPages,
	}, a.Logger)

	p.orchestrator = service.New(assembler, persister, service.Options{
		Concurrency:    a.Config.Batch.Concurrency,
		PersistWorkers: a.Config.Batch.PersistWorkers,
	}, a.Logger)
	return p, nil
}

// Fetch runs a single batch. SIGINT/SIGTERM stop launching new instruments
// and wait for in-flight ones.
func (a *App) Fetch(ctx context.Context, opts BatchOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.Config.ApplyBatchOverrides(opts.Concurrency, opts.Workers, opts.OutputDir)

	p, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	report, err := p.orchestrator.RunBatch(ctx, a.source(opts))
	a.notify(context.WithoutCancel(ctx), report)
	if err != nil {
		return err
	}
	return failedError(report)
}

// Run repeats batches on the scheduler interval until interrupted.
func (a *App) Run(ctx context.Context, opts BatchOptions) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.Config.ApplyBatchOverrides(opts.Concurrency, opts.Workers, opts.OutputDir)

	p, err := a.newPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.close()

	if addr := a.Config.Metrics.Listen; addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, a.Logger); err != nil {
				a.Logger.Error().Err(err).Msg("metrics endpoint stopped")
			}
		}()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		Immediate:    a.Config.Scheduler.RunOnStart,
	}, a.Logger)

	a.Logger.Info().Dur("interval", a.Config.Scheduler.Interval).Msg("starting scheduled batches")
	err = sched.Run(ctx, func(ctx context.Context, due time.Time) error {
		report, err := p.orchestrator.RunBatch(ctx, a.source(opts))
		a.notify(context.WithoutCancel(ctx), report)
		if err != nil {
			return err
		}
		return failedError(report)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("scheduler terminated with error")
		return err
	}

	a.Logger.Info().Msg("scheduled batches stopped")
	return nil
}

func (a *App) notify(ctx context.Context, report service.Report) {
	notifier := a.newNotifier()
	if notifier == nil || report.RunID == "" {
		return
	}
	note := notificationFrom(report)
	if !alerting.ShouldNotify(note, a.Config.Alerting.OnPartial) {
		return
	}
	if err := notifier.Notify(ctx, note); err != nil {
		a.Logger.Error().Err(err).Str("run_id", report.RunID).Msg("batch summary notification failed")
	}
}

func notificationFrom(report service.Report) alerting.Notification {
	counts := report.Counts()
	note := alerting.Notification{
		RunID:       report.RunID,
		StartedAt:   report.StartedAt,
		Duration:    report.Duration,
		Succeeded:   counts.Succeeded,
		NoData:      counts.NoData,
		Partial:     counts.Partial,
		Failed:      counts.Failed,
		Interrupted: report.Interrupted,
	}
	for _, out := range report.WithStatus(service.StatusFailed) {
		note.FailedIDs = append(note.FailedIDs, out.Instrument.String())
	}
	for _, out := range report.WithStatus(service.StatusPartial) {
		note.PartialIDs = append(note.PartialIDs, out.Instrument.String())
	}
	return note
}

func failedError(report service.Report) error {
	if n := report.Counts().Failed; n > 0 {
		return fmt.Errorf("%d of %d instruments failed", n, len(report.Outcomes))
	}
	return nil
}
