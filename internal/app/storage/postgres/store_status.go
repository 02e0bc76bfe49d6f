package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/candlewarehouse/engine/internal/app/domain/enrichstatus"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
)

func (s *Store) GetStatus(ctx context.Context, ticker string, class symbol.AssetClass) (enrichstatus.Status, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, asset_class, last_success, last_source, last_duration_ms,
		       state, quality_score, record_count, last_error, updated_at
		FROM enrichment_status
		WHERE symbol = $1 AND asset_class = $2`,
		ticker, string(class),
	)

	var st enrichstatus.Status
	var assetClass, state string
	var lastErr sql.NullString
	var lastDurationMS int64

	err := row.Scan(
		&st.Symbol, &assetClass, &st.LastSuccess, &st.LastSource, &lastDurationMS,
		&state, &st.QualityScore, &st.RecordCount, &lastErr, &st.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return enrichstatus.Status{}, false, nil
	}
	if err != nil {
		return enrichstatus.Status{}, false, fmt.Errorf("get enrichment status: %w", err)
	}

	st.AssetClass = symbol.AssetClass(assetClass)
	st.State = enrichstatus.State(state)
	st.LastError = lastErr.String
	st.LastDuration = time.Duration(lastDurationMS) * time.Millisecond
	return st, true, nil
}

func (s *Store) UpsertStatus(ctx context.Context, status enrichstatus.Status) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enrichment_status (
			symbol, asset_class, last_success, last_source, last_duration_ms,
			state, quality_score, record_count, last_error, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (symbol, asset_class) DO UPDATE SET
			last_success = EXCLUDED.last_success,
			last_source = EXCLUDED.last_source,
			last_duration_ms = EXCLUDED.last_duration_ms,
			state = EXCLUDED.state,
			quality_score = EXCLUDED.quality_score,
			record_count = EXCLUDED.record_count,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at`,
		status.Symbol, string(status.AssetClass), status.LastSuccess, status.LastSource, durationToMS(status.LastDuration),
		string(status.State), status.QualityScore, status.RecordCount, nullableString(status.LastError), status.UpdatedAt,
	)
	return err
}

func durationToMS(d time.Duration) int64 { return d.Milliseconds() }
