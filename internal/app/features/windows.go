package features

import (
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
)

// tradingDaySeconds is the nominal session length used to derive D, the
// periods-per-trading-day lookback for return_day (spec §4.5). Stocks/ETFs
// use the 6.5h NYSE session; crypto trades the full 24h.
const (
	stockTradingDaySeconds  = 6.5 * 3600
	cryptoTradingDaySeconds = 24 * 3600
)

// PeriodsPerTradingDay returns D, the number of periods of the given
// duration that make up one trading day for the asset class. Used as the
// lookback offset for return_day per spec §4.5 and SPEC_FULL.md §10's
// resolution of the "calendar day vs period count" open question.
func PeriodsPerTradingDay(class symbol.AssetClass, period symbol.Period) int {
	if period == symbol.Period1d {
		return 1
	}
	if period == symbol.Period1w {
		return 1
	}

	daySeconds := stockTradingDaySeconds
	if class == symbol.AssetCrypto {
		daySeconds = cryptoTradingDaySeconds
	}

	periodSeconds := period.Duration().Seconds()
	if periodSeconds <= 0 {
		return 1
	}

	d := int(daySeconds / periodSeconds)
	if d < 1 {
		d = 1
	}
	return d
}
