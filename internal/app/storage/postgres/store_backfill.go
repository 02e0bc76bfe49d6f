package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/candlewarehouse/engine/internal/app/domain/backfill"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
)

func (s *Store) GetState(ctx context.Context, jobID, ticker string, class symbol.AssetClass, period symbol.Period) (backfill.State, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, symbol, asset_class, period,
		       requested_start, requested_end, last_successful_date,
		       status, retry_count, last_error, created_at, updated_at
		FROM backfill_states
		WHERE job_id = $1 AND symbol = $2 AND asset_class = $3 AND period = $4`,
		jobID, ticker, string(class), string(period),
	)
	st, err := scanBackfillState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return backfill.State{}, false, nil
	}
	if err != nil {
		return backfill.State{}, false, fmt.Errorf("get backfill state: %w", err)
	}
	return st, true, nil
}

func (s *Store) FindResumable(ctx context.Context, ticker string, class symbol.AssetClass, period symbol.Period) (backfill.State, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, job_id, symbol, asset_class, period,
		       requested_start, requested_end, last_successful_date,
		       status, retry_count, last_error, created_at, updated_at
		FROM backfill_states
		WHERE symbol = $1 AND asset_class = $2 AND period = $3 AND status IN ('in-progress', 'failed')
		ORDER BY updated_at DESC
		LIMIT 1`,
		ticker, string(class), string(period),
	)
	st, err := scanBackfillState(row)
	if errors.Is(err, sql.ErrNoRows) {
		return backfill.State{}, false, nil
	}
	if err != nil {
		return backfill.State{}, false, fmt.Errorf("find resumable backfill state: %w", err)
	}
	return st, true, nil
}

func scanBackfillState(row *sql.Row) (backfill.State, error) {
	var st backfill.State
	var assetClass, period, status string
	var lastErr sql.NullString

	err := row.Scan(
		&st.ID, &st.JobID, &st.Symbol, &assetClass, &period,
		&st.RequestedStart, &st.RequestedEnd, &st.LastSuccessfulDate,
		&status, &st.RetryCount, &lastErr, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return backfill.State{}, err
	}
	st.AssetClass = symbol.AssetClass(assetClass)
	st.Period = symbol.Period(period)
	st.Status = backfill.Status(status)
	st.LastError = lastErr.String
	return st, nil
}

func (s *Store) CreateState(ctx context.Context, state backfill.State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backfill_states (
			id, job_id, symbol, asset_class, period,
			requested_start, requested_end, last_successful_date,
			status, retry_count, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		state.ID, state.JobID, state.Symbol, string(state.AssetClass), string(state.Period),
		state.RequestedStart, state.RequestedEnd, state.LastSuccessfulDate,
		string(state.Status), state.RetryCount, nullableString(state.LastError), state.CreatedAt, state.UpdatedAt,
	)
	return err
}

func (s *Store) Advance(ctx context.Context, id string, lastSuccessfulDate time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE backfill_states
		SET last_successful_date = $2, status = 'in-progress', updated_at = $3
		WHERE id = $1`,
		id, lastSuccessfulDate, time.Now().UTC(),
	)
	return err
}

func (s *Store) CompleteState(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE backfill_states SET status = 'completed', updated_at = $2 WHERE id = $1`,
		id, time.Now().UTC(),
	)
	return err
}

func (s *Store) FailState(ctx context.Context, id string, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE backfill_states
		SET status = 'failed', retry_count = retry_count + 1, last_error = $2, updated_at = $3
		WHERE id = $1`,
		id, errMsg, time.Now().UTC(),
	)
	return err
}
