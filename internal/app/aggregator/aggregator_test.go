package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
	"github.com/candlewarehouse/engine/internal/app/providers"
	"github.com/candlewarehouse/engine/internal/app/resilience"
	"github.com/candlewarehouse/engine/internal/app/storage/memory"
)

type fakeProvider struct {
	name    string
	candles []candle.Raw
	err     error
	calls   int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) FetchCandles(ctx context.Context, nativeSymbol string, period symbol.Period, r providers.Range) ([]candle.Raw, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candles, nil
}

type fakeMicroProvider struct {
	fakeProvider
	micro providers.Microstructure
}

func (f *fakeMicroProvider) FetchMicrostructure(ctx context.Context, nativeSymbol string, period symbol.Period) (providers.Microstructure, error) {
	return f.micro, f.err
}

func testSymbols() *symbol.Table {
	return symbol.NewTable([]symbol.Descriptor{
		{Ticker: "AAPL", Active: true, Aliases: map[string]string{"rich": "AAPL.US", "fallback": "AAPL"}},
		{Ticker: "BTC-USD", Active: true, Aliases: map[string]string{"crypto-futures": "BTCUSDT", "rich": "BTC-USD"}},
		{Ticker: "NOALIAS", Active: true, Aliases: map[string]string{}},
	})
}

func TestFetchOHLCVReturnsFirstSuccessfulSource(t *testing.T) {
	rich := &fakeProvider{name: "rich", candles: []candle.Raw{{OpenTime: time.Now()}}}
	fallback := &fakeProvider{name: "fallback"}

	agg := New(testSymbols(), Config{
		RichProvider:     rich,
		FallbackProvider: fallback,
		Breakers:         resilience.NewRegistry(resilience.DefaultConfig()),
		Audit:            memory.New(),
	})

	res, err := agg.FetchOHLCV(context.Background(), "AAPL", symbol.AssetStock, symbol.Period1d, providers.Range{})
	require.NoError(t, err)
	assert.Equal(t, "rich", res.Source)
	assert.Equal(t, 1, rich.calls)
	assert.Equal(t, 0, fallback.calls)
}

func TestFetchOHLCVFallsBackOnSourceFailure(t *testing.T) {
	rich := &fakeProvider{name: "rich", err: providers.NewError(providers.ErrKindTransport, "rich", assertErr)}
	fallback := &fakeProvider{name: "fallback", candles: []candle.Raw{{OpenTime: time.Now()}}}

	agg := New(testSymbols(), Config{
		RichProvider:     rich,
		FallbackProvider: fallback,
		Breakers:         resilience.NewRegistry(resilience.DefaultConfig()),
		Audit:            memory.New(),
	})

	res, err := agg.FetchOHLCV(context.Background(), "AAPL", symbol.AssetStock, symbol.Period1d, providers.Range{})
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Source)
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, "rich", res.Attempts[0].Source)
}

func TestFetchOHLCVSkipsSourceWithoutAlias(t *testing.T) {
	rich := &fakeProvider{name: "rich", candles: []candle.Raw{{OpenTime: time.Now()}}}
	fallback := &fakeProvider{name: "fallback"}

	agg := New(testSymbols(), Config{
		RichProvider:     rich,
		FallbackProvider: fallback,
		Breakers:         resilience.NewRegistry(resilience.DefaultConfig()),
		Audit:            memory.New(),
	})

	_, err := agg.FetchOHLCV(context.Background(), "NOALIAS", symbol.AssetStock, symbol.Period1d, providers.Range{})
	require.Error(t, err)
	assert.Equal(t, 0, rich.calls)
}

func TestFetchOHLCVReturnsErrorWhenAllSourcesExhausted(t *testing.T) {
	rich := &fakeProvider{name: "rich", err: assertErr}
	fallback := &fakeProvider{name: "fallback", err: assertErr}

	agg := New(testSymbols(), Config{
		RichProvider:     rich,
		FallbackProvider: fallback,
		Breakers:         resilience.NewRegistry(resilience.DefaultConfig()),
		Audit:            memory.New(),
	})

	_, err := agg.FetchOHLCV(context.Background(), "AAPL", symbol.AssetStock, symbol.Period1d, providers.Range{})
	require.Error(t, err)
}

func TestFetchOHLCVReturnsErrorForUnregisteredSymbol(t *testing.T) {
	agg := New(testSymbols(), Config{Breakers: resilience.NewRegistry(resilience.DefaultConfig()), Audit: memory.New()})
	_, err := agg.FetchOHLCV(context.Background(), "UNKNOWN", symbol.AssetStock, symbol.Period1d, providers.Range{})
	require.Error(t, err)
}

func TestFetchParallelReturnsResultsInInputOrder(t *testing.T) {
	rich := &fakeProvider{name: "rich", candles: []candle.Raw{{OpenTime: time.Now()}}}

	agg := New(testSymbols(), Config{
		RichProvider: rich,
		Breakers:     resilience.NewRegistry(resilience.DefaultConfig()),
		Audit:        memory.New(),
	})

	results := agg.FetchParallel(context.Background(), []string{"AAPL", "NOALIAS"}, symbol.AssetStock, symbol.Period1d, providers.Range{}, 2)
	require.Len(t, results, 2)
	assert.Equal(t, "AAPL", results[0].Ticker)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "NOALIAS", results[1].Ticker)
	assert.Error(t, results[1].Err)
}

func TestFetchMicrostructureRoutesToCryptoFuturesProvider(t *testing.T) {
	rate := 0.001
	micro := &fakeMicroProvider{fakeProvider: fakeProvider{name: "crypto-futures"}, micro: providers.Microstructure{FundingRate: &rate}}

	agg := New(testSymbols(), Config{
		CryptoFuturesProvider: micro,
		Breakers:              resilience.NewRegistry(resilience.DefaultConfig()),
		Audit:                 memory.New(),
	})

	got, err := agg.FetchMicrostructure(context.Background(), "BTC-USD", symbol.Period1h)
	require.NoError(t, err)
	require.NotNil(t, got.FundingRate)
	assert.Equal(t, rate, *got.FundingRate)
}

var assertErr = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
