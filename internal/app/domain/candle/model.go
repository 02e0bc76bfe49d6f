// Package candle holds the raw and enriched candle types.
package candle

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
)

// Raw is the neutral fetch result returned by a provider client. It is
// transient: it exists only within a single enrichment pass.
type Raw struct {
	Symbol     string
	AssetClass symbol.AssetClass
	Period     symbol.Period
	OpenTime   time.Time // UTC instant at the start of the candle's window
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	Volume     int64

	// Crypto-only fields. Nil when not carried by the source.
	TakerBuyVolume    *decimal.Decimal
	TakerSellVolume   *decimal.Decimal
	OpenInterest      *decimal.Decimal
	FundingRate       *decimal.Decimal
	LongLiquidations  *decimal.Decimal
	ShortLiquidations *decimal.Decimal
}

// TrendDirection classifies price action relative to its 20-period mean.
type TrendDirection string

const (
	TrendUp      TrendDirection = "up"
	TrendDown    TrendDirection = "down"
	TrendNeutral TrendDirection = "neutral"
)

// MarketStructure classifies the shape of the last 40 periods.
type MarketStructure string

const (
	StructureBullish MarketStructure = "bullish"
	StructureBearish MarketStructure = "bearish"
	StructureRange   MarketStructure = "range"
)

// Key uniquely identifies an enriched row.
type Key struct {
	Symbol     string
	AssetClass symbol.AssetClass
	Period     symbol.Period
	OpenTime   time.Time
}

// Enriched is the persisted, validated, feature-annotated row.
type Enriched struct {
	ID  string
	Key Key

	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume int64

	// Universal features. Null (nil pointer) for the uncovered prefix of a
	// short sequence.
	ReturnPeriod    *float64
	ReturnDay       *float64
	Volatility20    *float64
	Volatility50    *float64
	ATR14           *float64
	TrendDirection  TrendDirection
	MarketStructure MarketStructure
	RollingVolume20 *float64

	// Crypto-only features. Always nil on non-crypto rows.
	Delta                *float64
	BuySellRatio         *float64
	LiquidationIntensity *float64
	VolumeSpikeScore     *float64
	OpenInterestChange   *float64

	// Quality annotations.
	Source            string
	Validated         bool
	QualityScore      float64
	Completeness      float64
	GapFlag           bool
	VolumeAnomalyFlag bool
	ValidationNote    string

	// Versioning.
	Revision     int
	AmendedFrom  string
	FetchedAt    time.Time
	ComputedAt   time.Time
	UpdatedAt    time.Time
	CreatedAt    time.Time
}

// OHLCValid reports the OHLC relation invariant from spec §3/§8: low <=
// min(open, close) <= max(open, close) <= high, all prices > 0.
func (e Enriched) OHLCValid() bool {
	if e.Open.LessThanOrEqual(decimal.Zero) || e.High.LessThanOrEqual(decimal.Zero) ||
		e.Low.LessThanOrEqual(decimal.Zero) || e.Close.LessThanOrEqual(decimal.Zero) {
		return false
	}
	minOC := decimal.Min(e.Open, e.Close)
	maxOC := decimal.Max(e.Open, e.Close)
	if e.Low.GreaterThan(minOC) {
		return false
	}
	if maxOC.GreaterThan(e.High) {
		return false
	}
	return true
}

// IsCrypto reports whether the row belongs to the crypto asset class.
func (e Enriched) IsCrypto() bool {
	return e.Key.AssetClass == symbol.AssetCrypto
}
