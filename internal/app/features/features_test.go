package features

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func makeRaw(n int, start time.Time, step time.Duration, base float64) []candle.Raw {
	out := make([]candle.Raw, n)
	price := base
	for i := 0; i < n; i++ {
		out[i] = candle.Raw{
			Symbol:     "TEST",
			AssetClass: symbol.AssetStock,
			Period:     symbol.Period1h,
			OpenTime:   start.Add(time.Duration(i) * step),
			Open:       d(price),
			High:       d(price + 1),
			Low:        d(price - 1),
			Close:      d(price + 0.5),
			Volume:     1000 + int64(i),
		}
		price += 0.1
	}
	return out
}

func TestComputePreservesOrderAndKeys(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := makeRaw(5, start, time.Hour, 100)

	out, err := Compute(raw, symbol.AssetStock, symbol.Period1h)
	require.NoError(t, err)
	require.Len(t, out, 5)

	for i, e := range out {
		assert.Equal(t, raw[i].OpenTime, e.Key.OpenTime)
		assert.True(t, e.Open.Equal(raw[i].Open))
		assert.True(t, e.Close.Equal(raw[i].Close))
	}
}

func TestComputeLeavesShortPrefixFeaturesNil(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := makeRaw(5, start, time.Hour, 100)

	out, err := Compute(raw, symbol.AssetStock, symbol.Period1h)
	require.NoError(t, err)

	assert.Nil(t, out[0].Volatility20)
	assert.Nil(t, out[0].ATR14)
}

func TestComputeFillsATR14AfterWarmup(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := makeRaw(20, start, time.Hour, 100)

	out, err := Compute(raw, symbol.AssetStock, symbol.Period1h)
	require.NoError(t, err)

	require.NotNil(t, out[13].ATR14)
	assert.Greater(t, *out[13].ATR14, 0.0)
}

func TestComputeReturnDayUsesPeriodsPerTradingDay(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := makeRaw(60, start, time.Hour, 100)

	out, err := Compute(raw, symbol.AssetStock, symbol.Period1h)
	require.NoError(t, err)

	D := PeriodsPerTradingDay(symbol.AssetStock, symbol.Period1h)
	require.Less(t, D, len(raw))
	assert.Nil(t, out[D-1].ReturnDay)
	require.NotNil(t, out[D].ReturnDay)
}

func TestComputeCryptoFeaturesOnlyOnCryptoRows(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := makeRaw(3, start, time.Hour, 100)
	for i := range raw {
		raw[i].AssetClass = symbol.AssetCrypto
		buy := d(600)
		sell := d(400)
		raw[i].TakerBuyVolume = &buy
		raw[i].TakerSellVolume = &sell
	}

	out, err := Compute(raw, symbol.AssetCrypto, symbol.Period1h)
	require.NoError(t, err)

	for _, e := range out {
		require.NotNil(t, e.Delta)
		assert.InDelta(t, 200.0, *e.Delta, 0.001)
		require.NotNil(t, e.BuySellRatio)
		assert.InDelta(t, 0.6, *e.BuySellRatio, 0.001)
	}
}

func TestComputeStockRowsNeverPopulateCryptoFeatures(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := makeRaw(3, start, time.Hour, 100)

	out, err := Compute(raw, symbol.AssetStock, symbol.Period1h)
	require.NoError(t, err)

	for _, e := range out {
		assert.Nil(t, e.Delta)
		assert.Nil(t, e.BuySellRatio)
		assert.Nil(t, e.LiquidationIntensity)
		assert.Nil(t, e.OpenInterestChange)
	}
}

func TestComputeBuySellRatioDefaultsToHalfWhenVolumesZero(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := makeRaw(1, start, time.Hour, 100)
	raw[0].AssetClass = symbol.AssetCrypto
	zero := d(0)
	raw[0].TakerBuyVolume = &zero
	raw[0].TakerSellVolume = &zero

	out, err := Compute(raw, symbol.AssetCrypto, symbol.Period1h)
	require.NoError(t, err)
	require.NotNil(t, out[0].BuySellRatio)
	assert.Equal(t, 0.5, *out[0].BuySellRatio)
}

func TestPeriodsPerTradingDayDailyAndWeeklyAreOne(t *testing.T) {
	assert.Equal(t, 1, PeriodsPerTradingDay(symbol.AssetStock, symbol.Period1d))
	assert.Equal(t, 1, PeriodsPerTradingDay(symbol.AssetCrypto, symbol.Period1w))
}

func TestPeriodsPerTradingDayCryptoUsesFullDay(t *testing.T) {
	stockD := PeriodsPerTradingDay(symbol.AssetStock, symbol.Period1h)
	cryptoD := PeriodsPerTradingDay(symbol.AssetCrypto, symbol.Period1h)
	assert.Greater(t, cryptoD, stockD)
}

func TestNYSECalendarSkipsWeekendsAndHolidays(t *testing.T) {
	cal := NYSECalendar{}
	saturday := time.Date(2026, 1, 3, 12, 0, 0, 0, time.UTC)
	assert.False(t, cal.IsTradingPeriod(symbol.AssetStock, saturday))

	newYears := time.Date(2026, 1, 1, 16, 0, 0, 0, time.UTC)
	assert.False(t, cal.IsTradingPeriod(symbol.AssetStock, newYears))

	weekday := time.Date(2026, 1, 6, 16, 0, 0, 0, time.UTC)
	assert.True(t, cal.IsTradingPeriod(symbol.AssetStock, weekday))
}

func TestNYSECalendarAlwaysTradingForCrypto(t *testing.T) {
	cal := NYSECalendar{}
	saturday := time.Date(2026, 1, 3, 12, 0, 0, 0, time.UTC)
	assert.True(t, cal.IsTradingPeriod(symbol.AssetCrypto, saturday))
}
