package features

import (
	"time"

	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
)

// nyseHolidays pins a small static table of full-day NYSE closures, per the
// Open Question resolution in SPEC_FULL.md §10. Extend this table yearly;
// it intentionally does not attempt to compute observed-holiday rules.
var nyseHolidays = map[string]bool{
	"2023-01-02": true, "2023-01-16": true, "2023-02-20": true, "2023-04-07": true,
	"2023-05-29": true, "2023-06-19": true, "2023-07-04": true, "2023-09-04": true,
	"2023-11-23": true, "2023-12-25": true,
	"2024-01-01": true, "2024-01-15": true, "2024-02-19": true, "2024-03-29": true,
	"2024-05-27": true, "2024-06-19": true, "2024-07-04": true, "2024-09-02": true,
	"2024-11-28": true, "2024-12-25": true,
	"2025-01-01": true, "2025-01-20": true, "2025-02-17": true, "2025-04-18": true,
	"2025-05-26": true, "2025-06-19": true, "2025-07-04": true, "2025-09-01": true,
	"2025-11-27": true, "2025-12-25": true,
	"2026-01-01": true, "2026-01-19": true, "2026-02-16": true, "2026-04-03": true,
	"2026-05-25": true, "2026-06-19": true, "2026-07-03": true, "2026-09-07": true,
	"2026-11-26": true, "2026-12-25": true,
}

// NYSECalendar implements validation.TradingCalendar for stock/etf gap
// detection, treating weekends and the pinned holiday table as expected
// non-trading gaps. Crypto trades every day, so it always reports true for
// that asset class.
type NYSECalendar struct{}

func (NYSECalendar) IsTradingPeriod(class symbol.AssetClass, t time.Time) bool {
	if class == symbol.AssetCrypto {
		return true
	}
	t = t.UTC()
	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}
	if nyseHolidays[t.Format("2006-01-02")] {
		return false
	}
	return true
}
