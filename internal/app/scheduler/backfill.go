package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/candlewarehouse/engine/internal/app/domain/backfill"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
	"github.com/candlewarehouse/engine/internal/app/providers"
	"github.com/candlewarehouse/engine/internal/app/storage"
	"github.com/candlewarehouse/engine/pkg/logger"
)

// BackfillRunner drives the resumable historical backfill state machine of
// spec §4.6: a job resumes from its last successful period-open timestamp
// rather than restarting a failed or interrupted range from the beginning.
type BackfillRunner struct {
	pipeline *Pipeline
	states   storage.BackfillStore
	log      *logger.Logger
}

// NewBackfillRunner builds a BackfillRunner sharing the scheduler's
// enrichment pipeline.
func NewBackfillRunner(pipeline *Pipeline, states storage.BackfillStore, log *logger.Logger) *BackfillRunner {
	if log == nil {
		log = logger.NewDefault("backfill-runner")
	}
	return &BackfillRunner{pipeline: pipeline, states: states, log: log}
}

// Run executes (or resumes) a backfill job for one (ticker, class, period)
// over [start, end]. If a prior in-progress or failed state row exists for
// the same four-tuple, it resumes from that row's ResumeFrom() instant
// instead of the requested start.
func (b *BackfillRunner) Run(ctx context.Context, jobID, ticker string, class symbol.AssetClass, period symbol.Period, start, end time.Time) error {
	state, resuming, err := b.resolveState(ctx, jobID, ticker, class, period, start, end)
	if err != nil {
		return fmt.Errorf("resolve backfill state: %w", err)
	}
	if resuming {
		b.log.WithField("symbol", ticker).WithField("job_id", state.JobID).
			Info("resuming backfill from prior checkpoint")
	}

	resumeFrom := state.ResumeFrom()
	if resumeFrom.After(end) {
		return b.complete(ctx, state.ID)
	}

	r := providers.Range{Start: resumeFrom, End: end}
	onRetry := func(attempt int, attemptErr error) {
		if failErr := b.states.FailState(ctx, state.ID, attemptErr.Error()); failErr != nil {
			b.log.WithError(failErr).WithField("symbol", ticker).Warn("failed to advance backfill retry counter")
		}
	}
	_, runErr := b.pipeline.EnrichWithRetryHook(ctx, ticker, class, period, r, onRetry)
	if runErr != nil {
		if failErr := b.states.FailState(ctx, state.ID, runErr.Error()); failErr != nil {
			b.log.WithError(failErr).WithField("symbol", ticker).Warn("failed to record backfill failure")
		}
		return fmt.Errorf("backfill enrich: %w", runErr)
	}

	if err := b.states.Advance(ctx, state.ID, end); err != nil {
		return fmt.Errorf("advance backfill state: %w", err)
	}
	return b.complete(ctx, state.ID)
}

func (b *BackfillRunner) resolveState(ctx context.Context, jobID, ticker string, class symbol.AssetClass, period symbol.Period, start, end time.Time) (backfill.State, bool, error) {
	if existing, found, err := b.states.FindResumable(ctx, ticker, class, period); err != nil {
		return backfill.State{}, false, err
	} else if found {
		return existing, true, nil
	}

	now := time.Now().UTC()
	state := backfill.State{
		ID:             uuid.NewString(),
		JobID:          jobID,
		Symbol:         ticker,
		AssetClass:     class,
		Period:         period,
		RequestedStart: start,
		RequestedEnd:   end,
		Status:         backfill.StatusInProgress,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := b.states.CreateState(ctx, state); err != nil {
		return backfill.State{}, false, err
	}
	return state, false, nil
}

func (b *BackfillRunner) complete(ctx context.Context, id string) error {
	if err := b.states.CompleteState(ctx, id); err != nil {
		return fmt.Errorf("complete backfill state: %w", err)
	}
	return nil
}
