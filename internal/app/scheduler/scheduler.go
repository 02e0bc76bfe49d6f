package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/candlewarehouse/engine/internal/app/concurrency"
	core "github.com/candlewarehouse/engine/internal/app/core/service"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
	"github.com/candlewarehouse/engine/internal/app/metrics"
	"github.com/candlewarehouse/engine/internal/app/providers"
	"github.com/candlewarehouse/engine/internal/app/system"
	"github.com/candlewarehouse/engine/pkg/logger"
)

var _ system.Service = (*Scheduler)(nil)

// Config tunes the scheduler's daily sweep.
type Config struct {
	// CronSchedule is a standard five-field cron expression, evaluated in
	// the process's local time zone.
	CronSchedule string
	// Lookback is how far back from now each sweep re-fetches, to cover
	// any upstream revisions to recently published candles.
	Lookback time.Duration
	// MaxConcurrent bounds how many symbol tasks run at once. Periods
	// within a symbol always run sequentially (spec §4.7/§5).
	MaxConcurrent int
}

// DefaultConfig returns the daily-sweep defaults of spec §4.7: once per day
// shortly after the US market close, a 24-hour lookback window, five
// concurrent symbol tasks.
func DefaultConfig() Config {
	return Config{
		CronSchedule:  "0 21 * * *",
		Lookback:      24 * time.Hour,
		MaxConcurrent: 5,
	}
}

// Scheduler drives the daily sweep across every active symbol and period,
// and exposes a manual trigger for out-of-band runs.
type Scheduler struct {
	symbols  *symbol.Table
	pipeline *Pipeline
	cfg      Config
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	running bool
}

// New creates a lifecycle-managed scheduler. It does not start the cron
// loop until Start is called.
func New(symbols *symbol.Table, pipeline *Pipeline, cfg Config, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("scheduler")
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	return &Scheduler{symbols: symbols, pipeline: pipeline, cfg: cfg, log: log}
}

// Name returns the service identifier.
func (s *Scheduler) Name() string { return "enrichment-scheduler" }

// Descriptor advertises the scheduler's architectural placement.
func (s *Scheduler) Descriptor() core.Descriptor {
	return core.Descriptor{
		Name:         s.Name(),
		Domain:       "enrichment",
		Layer:        core.LayerEngine,
		Capabilities: []string{"schedule", "sweep", "backfill"},
	}
}

// Start registers the daily sweep with an internal cron runner.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	id, err := c.AddFunc(s.cfg.CronSchedule, func() {
		runCtx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if err := s.RunSweep(runCtx); err != nil {
			s.log.WithError(err).Warn("daily sweep finished with errors")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule daily sweep: %w", err)
	}

	s.cron = c
	s.entryID = id
	s.running = true
	c.Start()

	s.log.WithField("schedule", s.cfg.CronSchedule).Info("enrichment scheduler started")
	return nil
}

// Stop halts the cron runner, waiting for any in-flight sweep to finish or
// ctx to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	c := s.cron
	s.running = false
	s.mu.Unlock()

	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.log.Info("enrichment scheduler stopped")
	return nil
}

// RunSweep fetches and enriches every active symbol, bounded across symbols
// by cfg.MaxConcurrent (spec §4.7: tasks for distinct symbols run
// independently up to the concurrency ceiling; tasks for the same symbol
// are never concurrent, and a symbol's periods run sequentially within its
// task). It returns the first error encountered but runs every task to
// completion regardless.
func (s *Scheduler) RunSweep(ctx context.Context) error {
	sweepStart := time.Now()
	defer func() { metrics.RecordSweepDuration(time.Since(sweepStart)) }()

	descriptors := s.symbols.Active()
	now := time.Now().UTC()
	r := providers.Range{Start: now.Add(-s.cfg.Lookback), End: now}

	group := concurrency.NewGroup(s.cfg.MaxConcurrent)
	for _, desc := range descriptors {
		desc := desc
		group.Go(ctx, func(ctx context.Context) error {
			var firstErr error
			for _, period := range desc.Periods {
				if _, err := s.pipeline.Enrich(ctx, desc.Ticker, desc.AssetClass, period, r); err != nil {
					s.log.WithError(err).
						WithField("symbol", desc.Ticker).
						WithField("period", string(period)).
						Warn("sweep task failed")
					if firstErr == nil {
						firstErr = err
					}
				}
			}
			return firstErr
		})
	}

	errs := group.Wait()
	if len(errs) > 0 {
		return fmt.Errorf("sweep completed with %d failed task(s): %w", len(errs), errs[0])
	}
	return nil
}

// Trigger runs a single (symbol, period) enrichment pass on demand, for
// manual or API-initiated re-fetches outside the daily cron cadence.
func (s *Scheduler) Trigger(ctx context.Context, ticker string, class symbol.AssetClass, period symbol.Period, r providers.Range) error {
	_, err := s.pipeline.Enrich(ctx, ticker, class, period, r)
	return err
}
