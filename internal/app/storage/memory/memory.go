// Package memory is an in-process storage.CandleStore/BackfillStore/
// StatusStore/AuditStore implementation, used by tests and local runs
// without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/candlewarehouse/engine/internal/app/domain/audit"
	"github.com/candlewarehouse/engine/internal/app/domain/backfill"
	"github.com/candlewarehouse/engine/internal/app/domain/candle"
	"github.com/candlewarehouse/engine/internal/app/domain/enrichstatus"
	"github.com/candlewarehouse/engine/internal/app/domain/symbol"
	"github.com/candlewarehouse/engine/internal/app/storage"
)

// Store is a mutex-guarded in-memory implementation of every storage
// interface, suitable for one process; it does not survive a restart.
type Store struct {
	mu sync.Mutex

	candles   map[string]candle.Enriched
	backfills map[string]backfill.State
	statuses  map[string]enrichstatus.Status

	amendments []audit.Amendment
	fetches    []audit.FetchEntry
	computes   []audit.ComputeEntry
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		candles:   make(map[string]candle.Enriched),
		backfills: make(map[string]backfill.State),
		statuses:  make(map[string]enrichstatus.Status),
	}
}

var (
	_ storage.CandleStore   = (*Store)(nil)
	_ storage.BackfillStore = (*Store)(nil)
	_ storage.StatusStore   = (*Store)(nil)
	_ storage.AuditStore    = (*Store)(nil)
)

func candleKey(k candle.Key) string {
	return fmt.Sprintf("%s|%s|%s|%d", k.Symbol, k.AssetClass, k.Period, k.OpenTime.UnixNano())
}

func statusKey(ticker string, class symbol.AssetClass) string {
	return fmt.Sprintf("%s|%s", ticker, class)
}

func backfillKey(jobID, ticker string, class symbol.AssetClass, period symbol.Period) string {
	return fmt.Sprintf("%s|%s|%s|%s", jobID, ticker, class, period)
}

// --- CandleStore ---

func (s *Store) GetByKey(_ context.Context, key candle.Key) (candle.Enriched, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.candles[candleKey(key)]
	return e, ok, nil
}

func (s *Store) ApplyBatch(_ context.Context, batch storage.CandleBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range batch.Inserts {
		s.candles[candleKey(e.Key)] = e
	}
	for _, e := range batch.Updates {
		s.candles[candleKey(e.Key)] = e
	}
	return nil
}

// --- BackfillStore ---

func (s *Store) GetState(_ context.Context, jobID, ticker string, class symbol.AssetClass, period symbol.Period) (backfill.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.backfills[backfillKey(jobID, ticker, class, period)]
	return st, ok, nil
}

func (s *Store) FindResumable(_ context.Context, ticker string, class symbol.AssetClass, period symbol.Period) (backfill.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []backfill.State
	for _, st := range s.backfills {
		if st.Symbol == ticker && st.AssetClass == class && st.Period == period && st.Resumable() {
			candidates = append(candidates, st)
		}
	}
	if len(candidates) == 0 {
		return backfill.State{}, false, nil
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].UpdatedAt.After(candidates[j].UpdatedAt) })
	return candidates[0], true, nil
}

func (s *Store) CreateState(_ context.Context, state backfill.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backfills[backfillKey(state.JobID, state.Symbol, state.AssetClass, state.Period)] = state
	return nil
}

func (s *Store) Advance(_ context.Context, id string, lastSuccessfulDate time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, st := range s.backfills {
		if st.ID == id {
			st.LastSuccessfulDate = lastSuccessfulDate
			st.Status = backfill.StatusInProgress
			st.UpdatedAt = time.Now().UTC()
			s.backfills[k] = st
			return nil
		}
	}
	return fmt.Errorf("backfill state %s not found", id)
}

func (s *Store) CompleteState(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, st := range s.backfills {
		if st.ID == id {
			st.Status = backfill.StatusCompleted
			st.UpdatedAt = time.Now().UTC()
			s.backfills[k] = st
			return nil
		}
	}
	return fmt.Errorf("backfill state %s not found", id)
}

func (s *Store) FailState(_ context.Context, id string, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, st := range s.backfills {
		if st.ID == id {
			st.Status = backfill.StatusFailed
			st.RetryCount++
			st.LastError = errMsg
			st.UpdatedAt = time.Now().UTC()
			s.backfills[k] = st
			return nil
		}
	}
	return fmt.Errorf("backfill state %s not found", id)
}

// --- StatusStore ---

func (s *Store) GetStatus(_ context.Context, ticker string, class symbol.AssetClass) (enrichstatus.Status, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[statusKey(ticker, class)]
	return st, ok, nil
}

func (s *Store) UpsertStatus(_ context.Context, status enrichstatus.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[statusKey(status.Symbol, status.AssetClass)] = status
	return nil
}

// --- AuditStore ---

func (s *Store) RecordAmendment(_ context.Context, a audit.Amendment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.amendments = append(s.amendments, a)
	return nil
}

func (s *Store) RecordFetch(_ context.Context, f audit.FetchEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches = append(s.fetches, f)
	return nil
}

func (s *Store) RecordCompute(_ context.Context, c audit.ComputeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.computes = append(s.computes, c)
	return nil
}

// Amendments returns a snapshot of every recorded amendment, for tests.
func (s *Store) Amendments() []audit.Amendment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.Amendment(nil), s.amendments...)
}

// Fetches returns a snapshot of every recorded fetch-audit row, for tests.
func (s *Store) Fetches() []audit.FetchEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.FetchEntry(nil), s.fetches...)
}

// Computes returns a snapshot of every recorded compute-audit row, for tests.
func (s *Store) Computes() []audit.ComputeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audit.ComputeEntry(nil), s.computes...)
}
