// Package scheduler drives the daily sweep and resumable backfill jobs that
// fetch, validate, compute, and persist enriched candles for every active
// symbol, per spec §4.6.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/candlewarehouse/engine/internal/app/aggregator"
	core "github.com/candlewarehouse/engine/internal/app/core/service"
	"github.com/candlewarehouse/engine/internal/app/domain/audit"
	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/enrichstatus"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
	"github.com/candlewarehouse/engine/internal/app/features"
	"github.com/candlewarehouse/engine/internal/app/metrics"
	"github.com/candlewarehouse/engine/internal/app/persistence"
	"github.com/candlewarehouse/engine/internal/app/providers"
	"github.com/candlewarehouse/engine/internal/app/resilience"
	"github.com/candlewarehouse/engine/internal/app/storage"
	"github.com/candlewarehouse/engine/internal/app/validation"
	"github.com/candlewarehouse/engine/pkg/logger"
)

// Pipeline runs the fetch -> validate -> compute -> persist chain of spec
// §4 for a single (symbol, asset class, period) unit of work.
type Pipeline struct {
	Aggregator *aggregator.Aggregator
	Calendar   validation.TradingCalendar
	Candles    storage.CandleStore
	Statuses   storage.StatusStore
	Audits     storage.AuditStore
	Retry      resilience.RetryConfig
	Log        *logger.Logger
	Hooks      core.ObservationHooks
}

// Enrich fetches candles for ticker over r, validates, computes features,
// scores quality, and upserts the result. It updates the symbol's
// enrichment status row regardless of outcome. The whole fetch -> validate
// -> compute -> persist task is retried as a unit on failure, per spec
// §4.7's per-symbol task contract.
func (p *Pipeline) Enrich(ctx context.Context, ticker string, class symbol.AssetClass, period symbol.Period, r providers.Range) (persistence.Result, error) {
	return p.EnrichWithRetryHook(ctx, ticker, class, period, r, nil)
}

// EnrichWithRetryHook runs Enrich's task, invoking onRetry between retry
// attempts with the 1-based attempt number that just failed. BackfillRunner
// passes a hook that advances its backfill-state retry counter per spec
// §4.7; a plain sweep task (Enrich) has no backfill-state row to advance
// and passes nil.
func (p *Pipeline) EnrichWithRetryHook(ctx context.Context, ticker string, class symbol.AssetClass, period symbol.Period, r providers.Range, onRetry func(attempt int, err error)) (persistence.Result, error) {
	meta := map[string]string{"symbol": ticker, "period": string(period)}
	done := core.StartObservation(ctx, p.Hooks, meta)
	start := time.Now()

	var result persistence.Result
	var enriched []candle.Enriched
	err := resilience.RetryNotify(ctx, p.Retry, 0, onRetry, func() error {
		var taskErr error
		result, enriched, taskErr = p.enrich(ctx, ticker, class, period, r)
		return taskErr
	})

	done(err)
	p.recordCompute(ctx, ticker, period, len(enriched), time.Since(start), err)
	p.updateStatus(ctx, ticker, class, enriched, err, start)
	return result, err
}

func (p *Pipeline) enrich(ctx context.Context, ticker string, class symbol.AssetClass, period symbol.Period, r providers.Range) (persistence.Result, []candle.Enriched, error) {
	fetch, err := p.Aggregator.FetchOHLCV(ctx, ticker, class, period, r)
	if err != nil {
		return persistence.Result{}, nil, fmt.Errorf("fetch: %w", err)
	}
	candles := fetch.Candles
	if len(candles) == 0 {
		return persistence.Result{}, nil, nil
	}

	if class == symbol.AssetCrypto {
		p.attachMicrostructure(ctx, ticker, period, candles)
	}

	report := validation.Validate(candles, class, period, p.Calendar)
	if report.Rejected {
		return persistence.Result{}, nil, fmt.Errorf("validation rejected: %s", report.RejectReason)
	}

	enriched, err := features.Compute(candles, class, period)
	if err != nil {
		return persistence.Result{}, nil, fmt.Errorf("compute features: %w", err)
	}

	now := time.Now().UTC()
	sequencePassRatio := 1.0
	if n := len(candles); n > 0 {
		sequencePassRatio = 1.0 - float64(len(report.SequenceFindings))/float64(n)
		if sequencePassRatio < 0 {
			sequencePassRatio = 0
		}
	}

	for i := range enriched {
		e := &enriched[i]
		e.Source = fetch.Source
		e.Validated = true
		e.GapFlag = report.GapFlags[i]
		e.VolumeAnomalyFlag = report.VolumeAnomalies[i]
		e.ValidationNote = validationNote(e.GapFlag, e.VolumeAnomalyFlag)

		present, expected := countFields(*e)
		e.Completeness = validation.Completeness(present, expected)
		age := now.Sub(e.Key.OpenTime)
		e.QualityScore = validation.QualityScore(e.Completeness, 1.0, sequencePassRatio, class, age)
		e.FetchedAt = now
		e.ComputedAt = now
	}

	result, err := persistence.Upsert(ctx, p.Candles, p.Audits, enriched)
	if err == nil {
		metrics.RecordPersistence(result.Inserted, result.Updated, result.Unchanged)
		metrics.RecordQualityScore(ticker, string(class), averageQuality(enriched))
	}
	return result, enriched, err
}

// attachMicrostructure fetches the latest open-interest/funding/liquidation
// snapshot and stamps it onto the most recent candle, since the upstream
// endpoint only ever reports the current point-in-time figures.
func (p *Pipeline) attachMicrostructure(ctx context.Context, ticker string, period symbol.Period, candles []candle.Raw) {
	ms, err := p.Aggregator.FetchMicrostructure(ctx, ticker, period)
	if err != nil {
		if p.Log != nil {
			p.Log.WithError(err).WithField("symbol", ticker).Debug("microstructure unavailable")
		}
		return
	}
	last := &candles[len(candles)-1]
	last.OpenInterest = decimalFromFloat(ms.OpenInterest)
	last.FundingRate = decimalFromFloat(ms.FundingRate)
	last.LongLiquidations = decimalFromFloat(ms.LongLiquidations)
	last.ShortLiquidations = decimalFromFloat(ms.ShortLiquidations)
}

func (p *Pipeline) recordCompute(ctx context.Context, ticker string, period symbol.Period, featuresComputed int, elapsed time.Duration, err error) {
	if p.Audits == nil {
		return
	}
	entry := audit.ComputeEntry{
		ID:               uuid.NewString(),
		Symbol:           ticker,
		Period:           period,
		CandlesProcessed: featuresComputed,
		FeaturesComputed: featuresComputed,
		DurationMS:       elapsed.Milliseconds(),
		Success:          err == nil,
		Timestamp:        time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if recErr := p.Audits.RecordCompute(ctx, entry); recErr != nil && p.Log != nil {
		p.Log.WithError(recErr).WithField("symbol", ticker).Warn("failed to record compute audit")
	}
}

func (p *Pipeline) updateStatus(ctx context.Context, ticker string, class symbol.AssetClass, enriched []candle.Enriched, runErr error, start time.Time) {
	if p.Statuses == nil {
		return
	}
	prior, _, _ := p.Statuses.GetStatus(ctx, ticker, class)
	status := enrichstatus.Status{
		Symbol:      ticker,
		AssetClass:  class,
		LastSuccess: prior.LastSuccess,
		LastSource:  prior.LastSource,
		RecordCount: prior.RecordCount,
		UpdatedAt:   time.Now().UTC(),
	}
	status.LastDuration = time.Since(start)

	if runErr != nil {
		status.State = enrichstatus.StateError
		status.LastError = runErr.Error()
		status.QualityScore = prior.QualityScore
	} else {
		status.LastSuccess = time.Now().UTC()
		status.LastError = ""
		status.RecordCount = prior.RecordCount + int64(len(enriched))
		if avg := averageQuality(enriched); avg > 0 {
			status.QualityScore = avg
		} else {
			status.QualityScore = prior.QualityScore
		}
		status.State = enrichstatus.StateForAge(class, 0)
		if len(enriched) > 0 {
			status.LastSource = enriched[len(enriched)-1].Source
		}
	}

	if err := p.Statuses.UpsertStatus(ctx, status); err != nil && p.Log != nil {
		p.Log.WithError(err).WithField("symbol", ticker).Warn("failed to update enrichment status")
	}
}

func validationNote(gap, anomaly bool) string {
	switch {
	case gap && anomaly:
		return "gap, volume-anomaly"
	case gap:
		return "gap"
	case anomaly:
		return "volume-anomaly"
	default:
		return ""
	}
}

// countFields reports the number of populated optional feature fields
// against the number expected for the row's asset class, for the
// completeness component of the quality score (spec §4.4).
func countFields(e candle.Enriched) (present, expected int) {
	universal := []*float64{e.ReturnPeriod, e.ReturnDay, e.Volatility20, e.Volatility50, e.ATR14, e.RollingVolume20}
	expected = len(universal)
	for _, f := range universal {
		if f != nil {
			present++
		}
	}
	if e.IsCrypto() {
		cryptoFields := []*float64{e.Delta, e.BuySellRatio, e.LiquidationIntensity, e.VolumeSpikeScore, e.OpenInterestChange}
		expected += len(cryptoFields)
		for _, f := range cryptoFields {
			if f != nil {
				present++
			}
		}
	}
	return present, expected
}

func averageQuality(rows []candle.Enriched) float64 {
	if len(rows) == 0 {
		return 0
	}
	var sum float64
	for _, r := range rows {
		sum += r.QualityScore
	}
	return sum / float64(len(rows))
}

func decimalFromFloat(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}
