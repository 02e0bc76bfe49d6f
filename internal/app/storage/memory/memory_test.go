package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/candlewarehouse/engine/internal/app/domain/audit"
	"github.com/candlewarehouse/engine/internal/app/domain/backfill"
	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/enrichstatus"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
	"github.com/candlewarehouse/engine/internal/app/storage"
)

func TestCandleStoreRoundTrip(t *testing.T) {
	s := New()
	key := candle.Key{Symbol: "AAPL", AssetClass: symbol.AssetStock, Period: symbol.Period1d, OpenTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}

	_, found, err := s.GetByKey(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, found)

	row := candle.Enriched{ID: "1", Key: key, Open: decimal.NewFromInt(100)}
	require.NoError(t, s.ApplyBatch(context.Background(), storage.CandleBatch{Inserts: []candle.Enriched{row}}))

	got, found, err := s.GetByKey(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1", got.ID)
}

func TestBackfillStateLifecycle(t *testing.T) {
	s := New()
	state := backfill.State{
		ID: "job-1", JobID: "job-1", Symbol: "AAPL", AssetClass: symbol.AssetStock, Period: symbol.Period1d,
		RequestedStart: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		RequestedEnd:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Status:         backfill.StatusInProgress,
	}
	require.NoError(t, s.CreateState(context.Background(), state))

	got, found, err := s.GetState(context.Background(), "job-1", "AAPL", symbol.AssetStock, symbol.Period1d)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, backfill.StatusInProgress, got.Status)

	mid := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Advance(context.Background(), "job-1", mid))

	got, _, err = s.GetState(context.Background(), "job-1", "AAPL", symbol.AssetStock, symbol.Period1d)
	require.NoError(t, err)
	assert.Equal(t, mid, got.LastSuccessfulDate)

	require.NoError(t, s.CompleteState(context.Background(), "job-1"))
	got, _, err = s.GetState(context.Background(), "job-1", "AAPL", symbol.AssetStock, symbol.Period1d)
	require.NoError(t, err)
	assert.Equal(t, backfill.StatusCompleted, got.Status)
}

func TestBackfillFailStateIncrementsRetryCount(t *testing.T) {
	s := New()
	state := backfill.State{ID: "job-2", JobID: "job-2", Symbol: "MSFT", AssetClass: symbol.AssetStock, Period: symbol.Period1d, Status: backfill.StatusInProgress}
	require.NoError(t, s.CreateState(context.Background(), state))

	require.NoError(t, s.FailState(context.Background(), "job-2", "timeout"))
	got, _, err := s.GetState(context.Background(), "job-2", "MSFT", symbol.AssetStock, symbol.Period1d)
	require.NoError(t, err)
	assert.Equal(t, backfill.StatusFailed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "timeout", got.LastError)
}

func TestFindResumableReturnsMostRecentMatchingTuple(t *testing.T) {
	s := New()
	older := backfill.State{ID: "a", JobID: "a", Symbol: "AAPL", AssetClass: symbol.AssetStock, Period: symbol.Period1d, Status: backfill.StatusFailed, UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	newer := backfill.State{ID: "b", JobID: "b", Symbol: "AAPL", AssetClass: symbol.AssetStock, Period: symbol.Period1d, Status: backfill.StatusInProgress, UpdatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, s.CreateState(context.Background(), older))
	require.NoError(t, s.CreateState(context.Background(), newer))

	got, found, err := s.FindResumable(context.Background(), "AAPL", symbol.AssetStock, symbol.Period1d)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "b", got.ID)
}

func TestFindResumableIgnoresCompletedStates(t *testing.T) {
	s := New()
	done := backfill.State{ID: "c", JobID: "c", Symbol: "AAPL", AssetClass: symbol.AssetStock, Period: symbol.Period1d, Status: backfill.StatusCompleted}
	require.NoError(t, s.CreateState(context.Background(), done))

	_, found, err := s.FindResumable(context.Background(), "AAPL", symbol.AssetStock, symbol.Period1d)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStatusStoreUpsertOverwrites(t *testing.T) {
	s := New()
	st := enrichstatus.Status{Symbol: "AAPL", AssetClass: symbol.AssetStock, State: enrichstatus.StateHealthy, QualityScore: 0.9}
	require.NoError(t, s.UpsertStatus(context.Background(), st))

	got, found, err := s.GetStatus(context.Background(), "AAPL", symbol.AssetStock)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, enrichstatus.StateHealthy, got.State)

	st.State = enrichstatus.StateStale
	require.NoError(t, s.UpsertStatus(context.Background(), st))
	got, _, err = s.GetStatus(context.Background(), "AAPL", symbol.AssetStock)
	require.NoError(t, err)
	assert.Equal(t, enrichstatus.StateStale, got.State)
}

func TestAuditStoreAppendsAndSnapshots(t *testing.T) {
	s := New()
	require.NoError(t, s.RecordAmendment(context.Background(), audit.Amendment{ID: "a1", RowID: "r1"}))
	require.NoError(t, s.RecordFetch(context.Background(), audit.FetchEntry{ID: "f1", Symbol: "AAPL"}))
	require.NoError(t, s.RecordCompute(context.Background(), audit.ComputeEntry{ID: "c1", Symbol: "AAPL"}))

	assert.Len(t, s.Amendments(), 1)
	assert.Len(t, s.Fetches(), 1)
	assert.Len(t, s.Computes(), 1)
}
