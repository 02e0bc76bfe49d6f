// Package storage defines the persistence contracts the engine depends on.
// Two implementations exist: memory (for tests and local runs) and postgres
// (production), both satisfying the same interfaces.
package storage

import (
	"context"
	"time"

	"github.com/candlewarehouse/engine/internal/app/domain/audit"
	"github.com/candlewarehouse/engine/internal/app/domain/backfill"
	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/enrichstatus"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
)

// CandleBatch is one atomic unit of work for CandleStore.ApplyBatch: rows
// to insert fresh, and rows replacing an existing key at a higher revision.
// Each batch executes as a single transaction; batches are independent.
type CandleBatch struct {
	Inserts []candle.Enriched
	Updates []candle.Enriched
}

// CandleStore persists enriched candle rows, keyed uniquely by
// (symbol, asset class, period, period-open timestamp).
type CandleStore interface {
	GetByKey(ctx context.Context, key candle.Key) (candle.Enriched, bool, error)
	ApplyBatch(ctx context.Context, batch CandleBatch) error
}

// BackfillStore persists the resumable backfill state machine of spec §4.6.
type BackfillStore interface {
	GetState(ctx context.Context, jobID, ticker string, class symbol.AssetClass, period symbol.Period) (backfill.State, bool, error)
	// FindResumable returns the most recent in-progress or failed state row
	// for the four-tuple, across any job id, for the resumption rule.
	FindResumable(ctx context.Context, ticker string, class symbol.AssetClass, period symbol.Period) (backfill.State, bool, error)
	CreateState(ctx context.Context, state backfill.State) error
	Advance(ctx context.Context, id string, lastSuccessfulDate time.Time) error
	CompleteState(ctx context.Context, id string) error
	FailState(ctx context.Context, id string, errMsg string) error
}

// StatusStore persists the per-symbol enrichment status row.
type StatusStore interface {
	GetStatus(ctx context.Context, ticker string, class symbol.AssetClass) (enrichstatus.Status, bool, error)
	UpsertStatus(ctx context.Context, status enrichstatus.Status) error
}

// AuditStore persists the append-only amendment, fetch, and compute logs.
type AuditStore interface {
	RecordAmendment(ctx context.Context, a audit.Amendment) error
	RecordFetch(ctx context.Context, f audit.FetchEntry) error
	RecordCompute(ctx context.Context, c audit.ComputeEntry) error
}
