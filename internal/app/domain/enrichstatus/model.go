// Package enrichstatus holds the per-symbol enrichment status row.
package enrichstatus

import (
	"time"

	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
)

// State classifies the freshness/health of a symbol's enrichment.
type State string

const (
	StateHealthy     State = "healthy"
	StateWarning     State = "warning"
	StateStale       State = "stale"
	StateError       State = "error"
	StateNotEnriched State = "not-enriched"
)

// Status is one row per (symbol, asset class).
type Status struct {
	Symbol       string
	AssetClass   symbol.AssetClass
	LastSuccess  time.Time
	LastSource   string
	LastDuration time.Duration
	State        State
	QualityScore float64
	RecordCount  int64
	LastError    string
	UpdatedAt    time.Time
}

// FreshnessThresholds are the per-asset-class SLA boundaries from spec §6.
type FreshnessThresholds struct {
	Target   time.Duration
	Warn     time.Duration
	Critical time.Duration
	Stale    time.Duration
}

// ThresholdsFor returns the data-freshness SLA for an asset class.
func ThresholdsFor(class symbol.AssetClass) FreshnessThresholds {
	if class == symbol.AssetCrypto {
		return FreshnessThresholds{
			Target:   30 * time.Second,
			Warn:     60 * time.Second,
			Critical: 120 * time.Second,
			Stale:    600 * time.Second,
		}
	}
	return FreshnessThresholds{
		Target:   60 * time.Second,
		Warn:     600 * time.Second,
		Critical: 5 * time.Minute,
		Stale:    3600 * time.Second,
	}
}

// StateForAge maps age-since-last-success to a status state per spec §6.
// Ages at or beyond Stale map to StateStale; at or beyond Critical or Warn
// map to StateWarning (the spec collapses "critical" into the warning
// state for the exposed status field, since {healthy, warning, stale,
// error} is the full enum on the status row); all younger ages map to
// StateHealthy.
func StateForAge(class symbol.AssetClass, age time.Duration) State {
	th := ThresholdsFor(class)
	switch {
	case age >= th.Stale:
		return StateStale
	case age >= th.Warn || age >= th.Critical:
		return StateWarning
	default:
		return StateHealthy
	}
}

// FreshnessScore returns the 0..1 freshness component of the quality score
// (spec §4.4): 1 within Target, decaying linearly to 0 at Stale.
func FreshnessScore(class symbol.AssetClass, age time.Duration) float64 {
	th := ThresholdsFor(class)
	if age <= th.Target {
		return 1.0
	}
	if age >= th.Stale {
		return 0.0
	}
	span := th.Stale - th.Target
	if span <= 0 {
		return 0.0
	}
	remaining := th.Stale - age
	return float64(remaining) / float64(span)
}
