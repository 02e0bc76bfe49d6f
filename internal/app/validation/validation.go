// Package validation runs the per-candle and per-sequence checks of spec
// §4.4 and computes the composite quality score.
package validation

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/enrichstatus"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
)

// CandleFinding records a single per-candle check failure.
type CandleFinding struct {
	Index int
	Field string
	Note  string
}

// SequenceFinding records a single per-sequence check failure or
// annotation (gap/volume-anomaly findings annotate rather than reject).
type SequenceFinding struct {
	Index int
	Kind  string // "duplicate", "out-of-order", "gap", "volume-anomaly"
	Note  string
}

// Report is the outcome of validating one candle sequence.
type Report struct {
	Rejected         bool
	RejectReason     string
	CandleFindings   []CandleFinding
	SequenceFindings []SequenceFinding
	GapFlags         map[int]bool
	VolumeAnomalies  map[int]bool
}

// Validate runs every check in spec §4.4 over an ordered candle sequence.
// Per-candle failures reject the whole sequence (no partial ingestion); gap
// and volume-anomaly findings annotate without rejecting.
func Validate(candles []candle.Raw, class symbol.AssetClass, period symbol.Period, calendar TradingCalendar) Report {
	report := Report{
		GapFlags:        make(map[int]bool),
		VolumeAnomalies: make(map[int]bool),
	}

	for i, c := range candles {
		findings := checkCandle(c, class)
		if len(findings) > 0 {
			report.CandleFindings = append(report.CandleFindings, findings...)
			report.Rejected = true
		}
	}
	if report.Rejected {
		report.RejectReason = "per-candle check failure"
		return report
	}

	report.SequenceFindings = append(report.SequenceFindings, checkOrderingAndDuplicates(candles)...)
	for _, f := range report.SequenceFindings {
		if f.Kind == "duplicate" || f.Kind == "out-of-order" {
			report.Rejected = true
		}
	}
	if report.Rejected {
		report.RejectReason = "per-sequence check failure"
		return report
	}

	gapFindings := checkGaps(candles, class, period, calendar)
	report.SequenceFindings = append(report.SequenceFindings, gapFindings...)
	for _, f := range gapFindings {
		report.GapFlags[f.Index] = true
	}

	anomalyFindings := checkVolumeAnomalies(candles, class)
	report.SequenceFindings = append(report.SequenceFindings, anomalyFindings...)
	for _, f := range anomalyFindings {
		report.VolumeAnomalies[f.Index] = true
	}

	return report
}

// TradingCalendar answers whether a given instant falls inside the
// asset class's normal trading session, so weekend/holiday gaps in equity
// sequences are not flagged as anomalous.
type TradingCalendar interface {
	IsTradingPeriod(class symbol.AssetClass, t time.Time) bool
}

func checkCandle(c candle.Raw, class symbol.AssetClass) []CandleFinding {
	var findings []CandleFinding
	zero := decimal.Zero

	if c.Open.LessThanOrEqual(zero) {
		findings = append(findings, CandleFinding{Field: "open", Note: "must be > 0"})
	}
	if c.High.LessThanOrEqual(zero) {
		findings = append(findings, CandleFinding{Field: "high", Note: "must be > 0"})
	}
	if c.Low.LessThanOrEqual(zero) {
		findings = append(findings, CandleFinding{Field: "low", Note: "must be > 0"})
	}
	if c.Close.LessThanOrEqual(zero) {
		findings = append(findings, CandleFinding{Field: "close", Note: "must be > 0"})
	}
	if c.Volume < 0 {
		findings = append(findings, CandleFinding{Field: "volume", Note: "must be >= 0"})
	}

	maxOC := decimal.Max(c.Open, c.Close)
	minOC := decimal.Min(c.Open, c.Close)
	if c.High.LessThan(maxOC) {
		findings = append(findings, CandleFinding{Field: "high", Note: "must be >= max(open, close)"})
	}
	if c.Low.GreaterThan(minOC) {
		findings = append(findings, CandleFinding{Field: "low", Note: "must be <= min(open, close)"})
	}

	if class == symbol.AssetCrypto {
		if c.OpenInterest != nil && c.OpenInterest.LessThan(zero) {
			findings = append(findings, CandleFinding{Field: "open_interest", Note: "must be >= 0"})
		}
		if c.LongLiquidations != nil && c.LongLiquidations.LessThan(zero) {
			findings = append(findings, CandleFinding{Field: "long_liquidations", Note: "must be >= 0"})
		}
		if c.ShortLiquidations != nil && c.ShortLiquidations.LessThan(zero) {
			findings = append(findings, CandleFinding{Field: "short_liquidations", Note: "must be >= 0"})
		}
		if c.FundingRate != nil {
			one := decimal.NewFromInt(1)
			negOne := decimal.NewFromInt(-1)
			if c.FundingRate.GreaterThan(one) || c.FundingRate.LessThan(negOne) {
				findings = append(findings, CandleFinding{Field: "funding_rate", Note: "must be within [-1.0, 1.0]"})
			}
		}
	}

	return findings
}

func checkOrderingAndDuplicates(candles []candle.Raw) []SequenceFinding {
	var findings []SequenceFinding
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].OpenTime, candles[i].OpenTime
		if cur.Equal(prev) {
			findings = append(findings, SequenceFinding{Index: i, Kind: "duplicate", Note: fmt.Sprintf("timestamp %s repeated", cur)})
		} else if cur.Before(prev) {
			findings = append(findings, SequenceFinding{Index: i, Kind: "out-of-order", Note: fmt.Sprintf("timestamp %s precedes %s", cur, prev)})
		}
	}
	return findings
}

func checkGaps(candles []candle.Raw, class symbol.AssetClass, period symbol.Period, calendar TradingCalendar) []SequenceFinding {
	var findings []SequenceFinding
	tick := period.Duration()
	if tick <= 0 {
		return findings
	}
	for i := 1; i < len(candles); i++ {
		gap := candles[i].OpenTime.Sub(candles[i-1].OpenTime)
		if gap <= tick {
			continue
		}
		if class != symbol.AssetCrypto && calendar != nil && isExpectedNonTradingGap(candles[i-1].OpenTime, candles[i].OpenTime, tick, calendar, class) {
			continue
		}
		findings = append(findings, SequenceFinding{Index: i, Kind: "gap", Note: fmt.Sprintf("gap of %s exceeds one period tick", gap)})
	}
	return findings
}

// isExpectedNonTradingGap reports whether any missing tick between from and
// to falls outside the trading calendar, i.e. the gap spans a non-trading
// period such as a weekend or holiday.
func isExpectedNonTradingGap(from, to time.Time, tick time.Duration, calendar TradingCalendar, class symbol.AssetClass) bool {
	for t := from.Add(tick); t.Before(to); t = t.Add(tick) {
		if !calendar.IsTradingPeriod(class, t) {
			return true
		}
	}
	return false
}

func checkVolumeAnomalies(candles []candle.Raw, class symbol.AssetClass) []SequenceFinding {
	var findings []SequenceFinding
	for i := range candles {
		window := rollingWindow(candles, i, 20)
		if len(window) < 5 {
			continue
		}
		median := medianVolume(window)
		if median <= 0 {
			continue
		}
		v := candles[i].Volume
		if float64(v) > 10*float64(median) {
			findings = append(findings, SequenceFinding{Index: i, Kind: "volume-anomaly", Note: "volume exceeds 10x rolling-20 median"})
		} else if class != symbol.AssetCrypto && median > 0 && float64(v) < 0.1*float64(median) {
			findings = append(findings, SequenceFinding{Index: i, Kind: "volume-anomaly", Note: "volume below 0.1x rolling-20 median"})
		}
	}
	return findings
}

func rollingWindow(candles []candle.Raw, i, size int) []candle.Raw {
	start := i - size
	if start < 0 {
		start = 0
	}
	return candles[start:i]
}

func medianVolume(window []candle.Raw) int64 {
	vols := make([]int64, len(window))
	for i, c := range window {
		vols[i] = c.Volume
	}
	sort.Slice(vols, func(i, j int) bool { return vols[i] < vols[j] })
	n := len(vols)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return vols[n/2]
	}
	return (vols[n/2-1] + vols[n/2]) / 2
}

// QualityScore computes the composite ∈ [0,1] score of spec §4.4:
// 0.40 completeness + 0.30 per-candle-pass-ratio + 0.20 per-sequence-pass-ratio
// + 0.10 freshness.
func QualityScore(completeness float64, candlePassRatio float64, sequencePassRatio float64, class symbol.AssetClass, age time.Duration) float64 {
	freshness := enrichstatus.FreshnessScore(class, age)
	score := 0.40*completeness + 0.30*candlePassRatio + 0.20*sequencePassRatio + 0.10*freshness
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// Completeness returns the fraction of expected, non-null fields present on
// an enriched candle out of the given expected-field count.
func Completeness(presentFields, expectedFields int) float64 {
	if expectedFields <= 0 {
		return 1
	}
	c := float64(presentFields) / float64(expectedFields)
	if c > 1 {
		return 1
	}
	if c < 0 {
		return 0
	}
	return c
}
