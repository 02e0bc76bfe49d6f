// Package features computes the universal and crypto-specific feature
// panels of spec §4.5 over an ordered in-memory candle sequence.
package features

import (
	"math"

	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
)

// Compute returns one Enriched row per input candle, in the same order,
// with every universal (and, for crypto, crypto-specific) feature field
// populated. The key and OHLCV are copied from the input candle; quality
// annotations and versioning fields are left at their zero value, and the
// caller fills those in from the validation report and persistence layer.
//
// A feature-computation error on any individual candle aborts the whole
// pass per spec §4.5's compute-failed semantics; partial results are never
// returned.
func Compute(candles []candle.Raw, class symbol.AssetClass, period symbol.Period) ([]candle.Enriched, error) {
	n := len(candles)
	closes := make([]float64, n)
	opens := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, c := range candles {
		closes[i] = c.Close.InexactFloat64()
		opens[i] = c.Open.InexactFloat64()
		highs[i] = c.High.InexactFloat64()
		lows[i] = c.Low.InexactFloat64()
		volumes[i] = float64(c.Volume)
	}

	logReturns := computeLogReturns(closes)
	sma20 := rollingMean(closes, 20)
	rollingVol20 := rollingMean(volumes, 20)
	atr14 := computeATR(highs, lows, closes, 14)
	vol20 := rollingStdev(logReturns, 20)
	vol50 := rollingStdev(logReturns, 50)
	D := PeriodsPerTradingDay(class, period)

	out := make([]candle.Enriched, n)
	for i, c := range candles {
		e := candle.Enriched{
			Key: candle.Key{
				Symbol:     c.Symbol,
				AssetClass: c.AssetClass,
				Period:     c.Period,
				OpenTime:   c.OpenTime,
			},
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		}

		e.ReturnPeriod = ptrOrNil(returnPeriod(opens[i], closes[i]))
		if i-D >= 0 {
			e.ReturnDay = ptrOrNil(closes[i]/closes[i-D] - 1)
		}
		e.Volatility20 = vol20[i]
		e.Volatility50 = vol50[i]
		e.ATR14 = atr14[i]
		e.RollingVolume20 = rollingVol20[i]

		e.TrendDirection = trendDirection(closes[i], sma20[i])
		e.MarketStructure = marketStructure(highs, lows, i)

		if c.AssetClass == symbol.AssetCrypto {
			computeCryptoFeatures(&e, candles, i, rollingVol20[i])
		}

		out[i] = e
	}

	return out, nil
}

func ptrOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func returnPeriod(open, close float64) float64 {
	if open == 0 {
		return 0
	}
	return close/open - 1
}

func computeLogReturns(closes []float64) []*float64 {
	out := make([]*float64, len(closes))
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		v := math.Log(closes[i] / closes[i-1])
		out[i] = &v
	}
	return out
}

func rollingMean(values []float64, window int) []*float64 {
	out := make([]*float64, len(values))
	for i := range values {
		start := i - window + 1
		if start < 0 {
			continue
		}
		sum := 0.0
		for j := start; j <= i; j++ {
			sum += values[j]
		}
		v := sum / float64(window)
		out[i] = &v
	}
	return out
}

func rollingStdev(logReturns []*float64, window int) []*float64 {
	out := make([]*float64, len(logReturns))
	for i := range logReturns {
		start := i - window + 1
		if start < 0 {
			continue
		}
		vals := make([]float64, 0, window)
		complete := true
		for j := start; j <= i; j++ {
			if logReturns[j] == nil {
				complete = false
				break
			}
			vals = append(vals, *logReturns[j])
		}
		if !complete || len(vals) < window {
			continue
		}
		v := stdev(vals)
		out[i] = &v
	}
	return out
}

func stdev(vals []float64) float64 {
	n := float64(len(vals))
	if n == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= n
	variance := 0.0
	for _, v := range vals {
		d := v - mean
		variance += d * d
	}
	variance /= n
	return math.Sqrt(variance)
}

// computeATR computes the Wilder-smoothed average true range over
// `period` candles: true_range[t] = max(high-low, |high-close_prev|,
// |low-close_prev|); ATR is a Wilder moving average of true_range.
func computeATR(highs, lows, closes []float64, period int) []*float64 {
	n := len(highs)
	out := make([]*float64, n)
	if n == 0 {
		return out
	}

	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		if i == 0 {
			tr[i] = highs[i] - lows[i]
			continue
		}
		hl := highs[i] - lows[i]
		hc := math.Abs(highs[i] - closes[i-1])
		lc := math.Abs(lows[i] - closes[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}

	if n < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += tr[i]
	}
	atr := sum / float64(period)
	v := atr
	out[period-1] = &v

	for i := period; i < n; i++ {
		atr = (atr*float64(period-1) + tr[i]) / float64(period)
		v := atr
		out[i] = &v
	}
	return out
}

func trendDirection(close float64, sma20 *float64) candle.TrendDirection {
	if sma20 == nil {
		return candle.TrendNeutral
	}
	s := *sma20
	switch {
	case close > 1.01*s:
		return candle.TrendUp
	case close < 0.99*s:
		return candle.TrendDown
	default:
		return candle.TrendNeutral
	}
}

func marketStructure(highs, lows []float64, i int) candle.MarketStructure {
	if i < 40 {
		return candle.StructureRange
	}
	curHigh, curLow := maxMin(highs, lows, i-19, i)
	priorHigh, priorLow := maxMin(highs, lows, i-39, i-20)

	switch {
	case curHigh > priorHigh && curLow > priorLow:
		return candle.StructureBullish
	case curHigh < priorHigh && curLow < priorLow:
		return candle.StructureBearish
	default:
		return candle.StructureRange
	}
}

func maxMin(highs, lows []float64, start, end int) (float64, float64) {
	hi := highs[start]
	lo := lows[start]
	for i := start + 1; i <= end; i++ {
		if highs[i] > hi {
			hi = highs[i]
		}
		if lows[i] < lo {
			lo = lows[i]
		}
	}
	return hi, lo
}

func computeCryptoFeatures(e *candle.Enriched, candles []candle.Raw, i int, rollingVol20 *float64) {
	c := candles[i]

	if c.TakerBuyVolume != nil && c.TakerSellVolume != nil {
		buy := c.TakerBuyVolume.InexactFloat64()
		sell := c.TakerSellVolume.InexactFloat64()
		delta := buy - sell
		e.Delta = &delta

		total := buy + sell
		ratio := 0.5
		if total != 0 {
			ratio = buy / total
		}
		e.BuySellRatio = &ratio
	}

	if c.LongLiquidations != nil && c.ShortLiquidations != nil {
		totalLiq := c.LongLiquidations.InexactFloat64() + c.ShortLiquidations.InexactFloat64()
		intensity := 0.0
		if c.Volume != 0 {
			intensity = totalLiq / float64(c.Volume)
		}
		e.LiquidationIntensity = &intensity
	}

	spike := 0.0
	if rollingVol20 != nil && *rollingVol20 != 0 {
		spike = float64(c.Volume) / *rollingVol20
	}
	e.VolumeSpikeScore = &spike

	if i > 0 && c.OpenInterest != nil && candles[i-1].OpenInterest != nil {
		prevOI := candles[i-1].OpenInterest.InexactFloat64()
		if prevOI != 0 {
			change := c.OpenInterest.InexactFloat64()/prevOI - 1
			e.OpenInterestChange = &change
		}
	}
}
