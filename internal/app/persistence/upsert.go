// Package persistence implements the insert-or-update semantics of spec
// §4.6 on top of the storage.CandleStore contract: insert on a new key,
// update only on a strictly higher incoming quality score, with revision
// increment and amendment-log journaling on every mutated field.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/candlewarehouse/engine/internal/app/domain/audit"
	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/storage"
)

// BatchSize is the fixed atomic-write chunk size from spec §4.6.
const BatchSize = 500

// Result aggregates the outcome of an Upsert call across every batch.
type Result struct {
	Inserted   int
	Updated    int
	Unchanged  int
	Amendments []audit.Amendment
}

// Upsert applies candidates in fixed-size, independently atomic batches.
// Within a batch, each candidate is compared against its existing row (if
// any); a batch that fails mid-way rolls back atomically per spec §4.6,
// leaving previously-applied batches in place.
func Upsert(ctx context.Context, store storage.CandleStore, auditStore storage.AuditStore, candidates []candle.Enriched) (Result, error) {
	var result Result

	for start := 0; start < len(candidates); start += BatchSize {
		end := start + BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		chunkResult, err := upsertChunk(ctx, store, auditStore, candidates[start:end])
		if err != nil {
			return result, fmt.Errorf("upsert batch [%d:%d): %w", start, end, err)
		}
		result.Inserted += chunkResult.Inserted
		result.Updated += chunkResult.Updated
		result.Unchanged += chunkResult.Unchanged
		result.Amendments = append(result.Amendments, chunkResult.Amendments...)
	}

	return result, nil
}

func upsertChunk(ctx context.Context, store storage.CandleStore, auditStore storage.AuditStore, chunk []candle.Enriched) (Result, error) {
	var result Result
	var batch storage.CandleBatch

	now := time.Now().UTC()

	for _, incoming := range chunk {
		existing, found, err := store.GetByKey(ctx, incoming.Key)
		if err != nil {
			return result, fmt.Errorf("lookup %+v: %w", incoming.Key, err)
		}

		if !found {
			incoming.ID = uuid.NewString()
			incoming.Revision = 1
			incoming.CreatedAt = now
			incoming.UpdatedAt = now
			batch.Inserts = append(batch.Inserts, incoming)
			result.Inserted++
			continue
		}

		if incoming.QualityScore <= existing.QualityScore {
			result.Unchanged++
			continue
		}

		amendments := diffFields(existing, incoming, now)
		incoming.ID = uuid.NewString()
		incoming.AmendedFrom = existing.ID
		incoming.Revision = existing.Revision + 1
		incoming.CreatedAt = existing.CreatedAt
		incoming.UpdatedAt = now
		batch.Updates = append(batch.Updates, incoming)
		result.Amendments = append(result.Amendments, amendments...)
		result.Updated++
	}

	if len(batch.Inserts) == 0 && len(batch.Updates) == 0 {
		return result, nil
	}

	if err := store.ApplyBatch(ctx, batch); err != nil {
		return Result{}, err
	}

	for _, a := range result.Amendments {
		if err := auditStore.RecordAmendment(ctx, a); err != nil {
			return result, fmt.Errorf("record amendment for row %s: %w", a.RowID, err)
		}
	}

	return result, nil
}

// diffFields compares every mutable value field between the stored row and
// the incoming replacement, producing one amendment-log entry per changed
// field. RowID references the pre-update id, per spec §4.6.
func diffFields(existing, incoming candle.Enriched, when time.Time) []audit.Amendment {
	var amendments []audit.Amendment
	add := func(field, oldVal, newVal string) {
		if oldVal == newVal {
			return
		}
		amendments = append(amendments, audit.Amendment{
			ID:        uuid.NewString(),
			RowID:     existing.ID,
			Field:     field,
			OldValue:  oldVal,
			NewValue:  newVal,
			Reason:    audit.ReasonSourceUpdated,
			Actor:     "scheduler",
			Timestamp: when,
		})
	}

	add("open", existing.Open.String(), incoming.Open.String())
	add("high", existing.High.String(), incoming.High.String())
	add("low", existing.Low.String(), incoming.Low.String())
	add("close", existing.Close.String(), incoming.Close.String())
	add("volume", fmt.Sprintf("%d", existing.Volume), fmt.Sprintf("%d", incoming.Volume))
	add("source", existing.Source, incoming.Source)
	add("quality_score", fmt.Sprintf("%.6f", existing.QualityScore), fmt.Sprintf("%.6f", incoming.QualityScore))
	add("validation_note", existing.ValidationNote, incoming.ValidationNote)

	if len(amendments) == 0 {
		amendments = append(amendments, audit.Amendment{
			ID:        uuid.NewString(),
			RowID:     existing.ID,
			Field:     "quality_score",
			OldValue:  fmt.Sprintf("%.6f", existing.QualityScore),
			NewValue:  fmt.Sprintf("%.6f", incoming.QualityScore),
			Reason:    audit.ReasonSourceUpdated,
			Actor:     "scheduler",
			Timestamp: when,
		})
	}

	return amendments
}
