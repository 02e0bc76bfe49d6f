// Package audit holds the append-only amendment-log, fetch-audit, and
// compute-audit row types.
package audit

import (
	"time"

	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
)

// AmendmentReason classifies why an enriched row's field was overwritten.
type AmendmentReason string

const (
	ReasonSourceUpdated      AmendmentReason = "source-updated"
	ReasonBugFix             AmendmentReason = "bug-fix"
	ReasonManualCorrection   AmendmentReason = "manual-correction"
	ReasonValidationFailure  AmendmentReason = "validation-failure"
)

// Amendment is one append-only record of a field-level overwrite on an
// existing enriched row.
type Amendment struct {
	ID        string
	RowID     string
	Field     string
	OldValue  string
	NewValue  string
	Reason    AmendmentReason
	Actor     string
	Timestamp time.Time
}

// FetchEntry is one append-only record of a provider fetch attempt.
type FetchEntry struct {
	ID               string
	Symbol           string
	Source           string
	Period           symbol.Period
	RangeStart       time.Time
	RangeEnd         time.Time
	RecordsFetched   int
	RecordsInserted  int
	RecordsUpdated   int
	LatencyMS        int64
	Success          bool
	QuotaRemaining   int
	Error            string
	Timestamp        time.Time
}

// ComputeEntry is one append-only record of a feature-compute pass.
type ComputeEntry struct {
	ID               string
	Symbol           string
	Period           symbol.Period
	CandlesProcessed int
	FeaturesComputed int
	DurationMS       int64
	Success          bool
	Error            string
	Timestamp        time.Time
}
