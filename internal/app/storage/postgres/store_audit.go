package postgres

import (
	"context"

	"github.com/candlewarehouse/engine/internal/app/domain/audit"
)

func (s *Store) RecordAmendment(ctx context.Context, a audit.Amendment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO amendment_log (id, row_id, field, old_value, new_value, reason, actor, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.RowID, a.Field, a.OldValue, a.NewValue, string(a.Reason), a.Actor, a.Timestamp,
	)
	return err
}

func (s *Store) RecordFetch(ctx context.Context, f audit.FetchEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fetch_audit (
			id, symbol, source, period, range_start, range_end,
			records_fetched, records_inserted, records_updated,
			latency_ms, success, quota_remaining, error, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		f.ID, f.Symbol, f.Source, string(f.Period), f.RangeStart, f.RangeEnd,
		f.RecordsFetched, f.RecordsInserted, f.RecordsUpdated,
		f.LatencyMS, f.Success, f.QuotaRemaining, nullableString(f.Error), f.Timestamp,
	)
	return err
}

func (s *Store) RecordCompute(ctx context.Context, c audit.ComputeEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO compute_audit (
			id, symbol, period, candles_processed, features_computed,
			duration_ms, success, error, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Symbol, string(c.Period), c.CandlesProcessed, c.FeaturesComputed,
		c.DurationMS, c.Success, nullableString(c.Error), c.Timestamp,
	)
	return err
}
