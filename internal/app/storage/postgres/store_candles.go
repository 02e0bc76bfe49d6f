package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
	"github.com/candlewarehouse/engine/internal/app/storage"
)

func (s *Store) GetByKey(ctx context.Context, key candle.Key) (candle.Enriched, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, asset_class, period, open_time,
		       open, high, low, close, volume,
		       return_period, return_day, volatility_20, volatility_50, atr_14,
		       trend_direction, market_structure, rolling_volume_20,
		       delta, buy_sell_ratio, liquidation_intensity, volume_spike_score, open_interest_change,
		       source, validated, quality_score, completeness, gap_flag, volume_anomaly_flag, validation_note,
		       revision, amended_from, fetched_at, computed_at, updated_at, created_at
		FROM enriched_candles
		WHERE symbol = $1 AND asset_class = $2 AND period = $3 AND open_time = $4`,
		key.Symbol, string(key.AssetClass), string(key.Period), key.OpenTime,
	)

	e, err := scanEnriched(row)
	if errors.Is(err, sql.ErrNoRows) {
		return candle.Enriched{}, false, nil
	}
	if err != nil {
		return candle.Enriched{}, false, fmt.Errorf("get enriched candle: %w", err)
	}
	return e, true, nil
}

func scanEnriched(row *sql.Row) (candle.Enriched, error) {
	var e candle.Enriched
	var assetClass, period, trend, structure string
	var amendedFrom sql.NullString

	err := row.Scan(
		&e.ID, &e.Key.Symbol, &assetClass, &period, &e.Key.OpenTime,
		&e.Open, &e.High, &e.Low, &e.Close, &e.Volume,
		&e.ReturnPeriod, &e.ReturnDay, &e.Volatility20, &e.Volatility50, &e.ATR14,
		&trend, &structure, &e.RollingVolume20,
		&e.Delta, &e.BuySellRatio, &e.LiquidationIntensity, &e.VolumeSpikeScore, &e.OpenInterestChange,
		&e.Source, &e.Validated, &e.QualityScore, &e.Completeness, &e.GapFlag, &e.VolumeAnomalyFlag, &e.ValidationNote,
		&e.Revision, &amendedFrom, &e.FetchedAt, &e.ComputedAt, &e.UpdatedAt, &e.CreatedAt,
	)
	if err != nil {
		return candle.Enriched{}, err
	}
	e.Key.AssetClass = symbol.AssetClass(assetClass)
	e.Key.Period = symbol.Period(period)
	e.TrendDirection = candle.TrendDirection(trend)
	e.MarketStructure = candle.MarketStructure(structure)
	e.AmendedFrom = amendedFrom.String
	return e, nil
}

// ApplyBatch inserts and updates rows inside a single transaction; a
// failure midway rolls the whole batch back, per spec §4.6.
func (s *Store) ApplyBatch(ctx context.Context, batch storage.CandleBatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range batch.Inserts {
		if err := insertEnriched(ctx, tx, e); err != nil {
			return fmt.Errorf("insert %s/%s/%s: %w", e.Key.Symbol, e.Key.Period, e.Key.OpenTime, err)
		}
	}
	for _, e := range batch.Updates {
		if err := upsertEnrichedReplace(ctx, tx, e); err != nil {
			return fmt.Errorf("update %s/%s/%s: %w", e.Key.Symbol, e.Key.Period, e.Key.OpenTime, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func insertEnriched(ctx context.Context, tx *sql.Tx, e candle.Enriched) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO enriched_candles (
			id, symbol, asset_class, period, open_time,
			open, high, low, close, volume,
			return_period, return_day, volatility_20, volatility_50, atr_14,
			trend_direction, market_structure, rolling_volume_20,
			delta, buy_sell_ratio, liquidation_intensity, volume_spike_score, open_interest_change,
			source, validated, quality_score, completeness, gap_flag, volume_anomaly_flag, validation_note,
			revision, amended_from, fetched_at, computed_at, updated_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18,
			$19, $20, $21, $22, $23,
			$24, $25, $26, $27, $28, $29, $30,
			$31, $32, $33, $34, $35, $36
		)
		ON CONFLICT (symbol, asset_class, period, open_time) DO NOTHING`,
		e.ID, e.Key.Symbol, string(e.Key.AssetClass), string(e.Key.Period), e.Key.OpenTime,
		e.Open, e.High, e.Low, e.Close, e.Volume,
		e.ReturnPeriod, e.ReturnDay, e.Volatility20, e.Volatility50, e.ATR14,
		string(e.TrendDirection), string(e.MarketStructure), e.RollingVolume20,
		e.Delta, e.BuySellRatio, e.LiquidationIntensity, e.VolumeSpikeScore, e.OpenInterestChange,
		e.Source, e.Validated, e.QualityScore, e.Completeness, e.GapFlag, e.VolumeAnomalyFlag, e.ValidationNote,
		e.Revision, nullableString(e.AmendedFrom), e.FetchedAt, e.ComputedAt, e.UpdatedAt, e.CreatedAt,
	)
	return err
}

// upsertEnrichedReplace overwrites the row at (symbol, asset_class, period,
// open_time) with a new surrogate id and incremented revision — the
// caller (internal/app/persistence) has already decided this update is
// warranted and computed amended_from/revision.
func upsertEnrichedReplace(ctx context.Context, tx *sql.Tx, e candle.Enriched) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO enriched_candles (
			id, symbol, asset_class, period, open_time,
			open, high, low, close, volume,
			return_period, return_day, volatility_20, volatility_50, atr_14,
			trend_direction, market_structure, rolling_volume_20,
			delta, buy_sell_ratio, liquidation_intensity, volume_spike_score, open_interest_change,
			source, validated, quality_score, completeness, gap_flag, volume_anomaly_flag, validation_note,
			revision, amended_from, fetched_at, computed_at, updated_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15,
			$16, $17, $18,
			$19, $20, $21, $22, $23,
			$24, $25, $26, $27, $28, $29, $30,
			$31, $32, $33, $34, $35, $36
		)
		ON CONFLICT (symbol, asset_class, period, open_time) DO UPDATE SET
			id = EXCLUDED.id,
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low, close = EXCLUDED.close, volume = EXCLUDED.volume,
			return_period = EXCLUDED.return_period, return_day = EXCLUDED.return_day,
			volatility_20 = EXCLUDED.volatility_20, volatility_50 = EXCLUDED.volatility_50, atr_14 = EXCLUDED.atr_14,
			trend_direction = EXCLUDED.trend_direction, market_structure = EXCLUDED.market_structure,
			rolling_volume_20 = EXCLUDED.rolling_volume_20,
			delta = EXCLUDED.delta, buy_sell_ratio = EXCLUDED.buy_sell_ratio,
			liquidation_intensity = EXCLUDED.liquidation_intensity, volume_spike_score = EXCLUDED.volume_spike_score,
			open_interest_change = EXCLUDED.open_interest_change,
			source = EXCLUDED.source, validated = EXCLUDED.validated, quality_score = EXCLUDED.quality_score,
			completeness = EXCLUDED.completeness, gap_flag = EXCLUDED.gap_flag,
			volume_anomaly_flag = EXCLUDED.volume_anomaly_flag, validation_note = EXCLUDED.validation_note,
			revision = EXCLUDED.revision, amended_from = EXCLUDED.amended_from, updated_at = EXCLUDED.updated_at`,
		e.ID, e.Key.Symbol, string(e.Key.AssetClass), string(e.Key.Period), e.Key.OpenTime,
		e.Open, e.High, e.Low, e.Close, e.Volume,
		e.ReturnPeriod, e.ReturnDay, e.Volatility20, e.Volatility50, e.ATR14,
		string(e.TrendDirection), string(e.MarketStructure), e.RollingVolume20,
		e.Delta, e.BuySellRatio, e.LiquidationIntensity, e.VolumeSpikeScore, e.OpenInterestChange,
		e.Source, e.Validated, e.QualityScore, e.Completeness, e.GapFlag, e.VolumeAnomalyFlag, e.ValidationNote,
		e.Revision, nullableString(e.AmendedFrom), e.FetchedAt, e.ComputedAt, e.UpdatedAt, e.CreatedAt,
	)
	return err
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
