package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/candlewarehouse/engine/internal/app/domain/audit"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
)

func TestRecordAmendmentExecutesInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO amendment_log").WillReturnResult(sqlmock.NewResult(0, 1))

	store := New(db)
	a := audit.Amendment{ID: "a1", RowID: "r1", Field: "close", Reason: audit.ReasonSourceUpdated, Timestamp: time.Now()}
	require.NoError(t, store.RecordAmendment(context.Background(), a))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFetchExecutesInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO fetch_audit").WillReturnResult(sqlmock.NewResult(0, 1))

	store := New(db)
	f := audit.FetchEntry{ID: "f1", Symbol: "AAPL", Source: "rich", Period: symbol.Period1d, Timestamp: time.Now()}
	require.NoError(t, store.RecordFetch(context.Background(), f))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordComputeExecutesInsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO compute_audit").WillReturnResult(sqlmock.NewResult(0, 1))

	store := New(db)
	c := audit.ComputeEntry{ID: "c1", Symbol: "AAPL", Period: symbol.Period1d, Timestamp: time.Now()}
	require.NoError(t, store.RecordCompute(context.Background(), c))
	require.NoError(t, mock.ExpectationsWereMet())
}
