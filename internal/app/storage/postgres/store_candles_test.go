package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
	"github.com/candlewarehouse/engine/internal/app/storage"
)

var enrichedColumns = []string{
	"id", "symbol", "asset_class", "period", "open_time",
	"open", "high", "low", "close", "volume",
	"return_period", "return_day", "volatility_20", "volatility_50", "atr_14",
	"trend_direction", "market_structure", "rolling_volume_20",
	"delta", "buy_sell_ratio", "liquidation_intensity", "volume_spike_score", "open_interest_change",
	"source", "validated", "quality_score", "completeness", "gap_flag", "volume_anomaly_flag", "validation_note",
	"revision", "amended_from", "fetched_at", "computed_at", "updated_at", "created_at",
}

func enrichedRowValues(now time.Time) []driverValue {
	return []driverValue{
		"row-1", "AAPL", "stock", "1d", now,
		"100.5000000", "101.0000000", "99.5000000", "100.8000000", int64(1000),
		nil, nil, nil, nil, nil,
		"up", "range", nil,
		nil, nil, nil, nil, nil,
		"rich", true, 0.95, 1.0, false, false, "",
		1, nil, now, now, now, now,
	}
}

type driverValue = interface{}

func TestGetByKeyReturnsRowWhenFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows(enrichedColumns).AddRow(enrichedRowValues(now)...)
	mock.ExpectQuery("SELECT id, symbol, asset_class, period, open_time").WillReturnRows(rows)

	store := New(db)
	key := candle.Key{Symbol: "AAPL", AssetClass: symbol.AssetStock, Period: symbol.Period1d, OpenTime: now}
	got, found, err := store.GetByKey(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "row-1", got.ID)
	assert.Equal(t, "rich", got.Source)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByKeyReturnsNotFoundOnNoRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT id, symbol, asset_class, period, open_time").WillReturnRows(sqlmock.NewRows(enrichedColumns))

	store := New(db)
	_, found, err := store.GetByKey(context.Background(), candle.Key{Symbol: "AAPL", AssetClass: symbol.AssetStock, Period: symbol.Period1d})
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyBatchCommitsInsertsAndUpdates(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enriched_candles").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO enriched_candles").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	store := New(db)
	batch := storage.CandleBatch{
		Inserts: []candle.Enriched{{ID: "a", Key: candle.Key{Symbol: "AAPL"}}},
		Updates: []candle.Enriched{{ID: "b", Key: candle.Key{Symbol: "MSFT"}}},
	}
	require.NoError(t, store.ApplyBatch(context.Background(), batch))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyBatchRollsBackOnInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO enriched_candles").WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	store := New(db)
	batch := storage.CandleBatch{Inserts: []candle.Enriched{{ID: "a", Key: candle.Key{Symbol: "AAPL"}}}}
	err = store.ApplyBatch(context.Background(), batch)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
