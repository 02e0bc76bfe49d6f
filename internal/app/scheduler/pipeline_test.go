package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlewarehouse/engine/internal/app/aggregator"
	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/enrichstatus"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
	"github.com/candlewarehouse/engine/internal/app/providers"
	"github.com/candlewarehouse/engine/internal/app/resilience"
	"github.com/candlewarehouse/engine/internal/app/storage/memory"
)

type alwaysTrading struct{}

func (alwaysTrading) IsTradingPeriod(symbol.AssetClass, time.Time) bool { return true }

type stubRichProvider struct {
	candles []candle.Raw
	err     error
}

func (s *stubRichProvider) Name() string { return "rich" }

func (s *stubRichProvider) FetchCandles(ctx context.Context, nativeSymbol string, period symbol.Period, r providers.Range) ([]candle.Raw, error) {
	return s.candles, s.err
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func wellFormedCandles(n int, start time.Time) []candle.Raw {
	out := make([]candle.Raw, n)
	price := 100.0
	for i := 0; i < n; i++ {
		out[i] = candle.Raw{
			OpenTime: start.Add(time.Duration(i) * time.Hour),
			Open:     dec(price),
			High:     dec(price + 1),
			Low:      dec(price - 1),
			Close:    dec(price + 0.5),
			Volume:   1000,
		}
		price += 0.1
	}
	return out
}

func newTestPipeline(t *testing.T, provider *stubRichProvider) (*Pipeline, *memory.Store, *symbol.Table) {
	t.Helper()
	symbols := symbol.NewTable([]symbol.Descriptor{
		{Ticker: "AAPL", AssetClass: symbol.AssetStock, Active: true, Periods: []symbol.Period{symbol.Period1h}, Aliases: map[string]string{"rich": "AAPL.US"}},
	})
	store := memory.New()
	agg := aggregator.New(symbols, aggregator.Config{
		RichProvider: provider,
		Breakers:     resilience.NewRegistry(resilience.DefaultConfig()),
		Audit:        store,
	})
	pipeline := &Pipeline{
		Aggregator: agg,
		Calendar:   alwaysTrading{},
		Candles:    store,
		Statuses:   store,
		Audits:     store,
		Retry:      resilience.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}
	return pipeline, store, symbols
}

func TestEnrichPersistsValidatedCandles(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	provider := &stubRichProvider{candles: wellFormedCandles(10, start)}
	pipeline, store, _ := newTestPipeline(t, provider)

	result, err := pipeline.Enrich(context.Background(), "AAPL", symbol.AssetStock, symbol.Period1h, providers.Range{Start: start, End: start.Add(10 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 10, result.Inserted)

	status, found, err := store.GetStatus(context.Background(), "AAPL", symbol.AssetStock)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, enrichstatus.StateHealthy, status.State)
	assert.Equal(t, int64(10), status.RecordCount)
}

func TestEnrichSkipsEmptyFetchWithoutError(t *testing.T) {
	provider := &stubRichProvider{candles: nil}
	pipeline, store, _ := newTestPipeline(t, provider)

	result, err := pipeline.Enrich(context.Background(), "AAPL", symbol.AssetStock, symbol.Period1h, providers.Range{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Inserted)

	status, found, err := store.GetStatus(context.Background(), "AAPL", symbol.AssetStock)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(0), status.RecordCount)
}

func TestEnrichRejectsInvalidCandleSequence(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	bad := []candle.Raw{{OpenTime: start, Open: dec(0), High: dec(1), Low: dec(0.5), Close: dec(0.8)}}
	provider := &stubRichProvider{candles: bad}
	pipeline, store, _ := newTestPipeline(t, provider)

	_, err := pipeline.Enrich(context.Background(), "AAPL", symbol.AssetStock, symbol.Period1h, providers.Range{})
	require.Error(t, err)

	status, found, err := store.GetStatus(context.Background(), "AAPL", symbol.AssetStock)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, enrichstatus.StateError, status.State)
	assert.NotEmpty(t, status.LastError)
}

type flakyRichProvider struct {
	candles   []candle.Raw
	failTimes int
	callCount int
}

func (f *flakyRichProvider) Name() string { return "rich" }

func (f *flakyRichProvider) FetchCandles(ctx context.Context, nativeSymbol string, period symbol.Period, r providers.Range) ([]candle.Raw, error) {
	f.callCount++
	if f.callCount <= f.failTimes {
		return nil, providers.NewError(providers.ErrKindTransport, "rich", assertErr)
	}
	return f.candles, nil
}

func TestEnrichRetriesTheWholeTaskNotJustTheFetch(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	symbols := symbol.NewTable([]symbol.Descriptor{
		{Ticker: "AAPL", AssetClass: symbol.AssetStock, Active: true, Periods: []symbol.Period{symbol.Period1h}, Aliases: map[string]string{"rich": "AAPL.US"}},
	})
	store := memory.New()
	provider := &flakyRichProvider{candles: wellFormedCandles(5, start), failTimes: 2}
	agg := aggregator.New(symbols, aggregator.Config{
		RichProvider: provider,
		Breakers:     resilience.NewRegistry(resilience.DefaultConfig()),
		Audit:        store,
	})
	pipeline := &Pipeline{
		Aggregator: agg,
		Calendar:   alwaysTrading{},
		Candles:    store,
		Statuses:   store,
		Audits:     store,
		Retry:      resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}

	result, err := pipeline.Enrich(context.Background(), "AAPL", symbol.AssetStock, symbol.Period1h, providers.Range{Start: start, End: start.Add(5 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, 5, result.Inserted)
	assert.Equal(t, 3, provider.callCount)
}

func TestEnrichWithRetryHookNotifiesCallerBetweenAttempts(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	symbols := symbol.NewTable([]symbol.Descriptor{
		{Ticker: "AAPL", AssetClass: symbol.AssetStock, Active: true, Periods: []symbol.Period{symbol.Period1h}, Aliases: map[string]string{"rich": "AAPL.US"}},
	})
	store := memory.New()
	provider := &flakyRichProvider{candles: wellFormedCandles(3, start), failTimes: 2}
	agg := aggregator.New(symbols, aggregator.Config{
		RichProvider: provider,
		Breakers:     resilience.NewRegistry(resilience.DefaultConfig()),
		Audit:        store,
	})
	pipeline := &Pipeline{
		Aggregator: agg,
		Calendar:   alwaysTrading{},
		Candles:    store,
		Statuses:   store,
		Audits:     store,
		Retry:      resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}

	var notifiedAttempts []int
	_, err := pipeline.EnrichWithRetryHook(context.Background(), "AAPL", symbol.AssetStock, symbol.Period1h,
		providers.Range{Start: start, End: start.Add(3 * time.Hour)},
		func(attempt int, _ error) { notifiedAttempts = append(notifiedAttempts, attempt) })
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, notifiedAttempts)
}

func TestEnrichRecordsComputeAuditOnFailure(t *testing.T) {
	provider := &stubRichProvider{err: providers.NewError(providers.ErrKindTransport, "rich", assertErr)}
	pipeline, store, _ := newTestPipeline(t, provider)

	_, err := pipeline.Enrich(context.Background(), "AAPL", symbol.AssetStock, symbol.Period1h, providers.Range{})
	require.Error(t, err)
	assert.NotEmpty(t, store.Computes())
}

var assertErr = &pipelineTestError{"boom"}

type pipelineTestError struct{ msg string }

func (e *pipelineTestError) Error() string { return e.msg }
