// Package backfill holds the resumable backfill-state machine's row type.
package backfill

import (
	"time"

	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
)

// Status is the lifecycle state of a backfill-state row.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// State is one row per (symbol, asset class, period, job id).
type State struct {
	ID         string
	JobID      string
	Symbol     string
	AssetClass symbol.AssetClass
	Period     symbol.Period

	RequestedStart time.Time
	RequestedEnd   time.Time
	// LastSuccessfulDate is the period-open timestamp of the last candle
	// successfully persisted for this job.
	LastSuccessfulDate time.Time

	Status     Status
	RetryCount int
	LastError  string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ResumeFrom returns the instant a newly started job matching this state's
// four-tuple should resume from: last_successful_date + 1 period, rather
// than from RequestedStart. If no successful date is recorded yet, it
// returns RequestedStart unchanged.
func (s State) ResumeFrom() time.Time {
	if s.LastSuccessfulDate.IsZero() {
		return s.RequestedStart
	}
	return s.LastSuccessfulDate.Add(s.Period.Duration())
}

// Resumable reports whether s is a candidate for resumption by a newly
// started job with the same four-tuple (in-progress or failed).
func (s State) Resumable() bool {
	return s.Status == StatusInProgress || s.Status == StatusFailed
}

// SatisfiesCompletion reports whether last can be marked completed against
// the requested end date.
func (s State) SatisfiesCompletion() bool {
	return !s.LastSuccessfulDate.Before(s.RequestedEnd)
}
