// Package postgres implements storage.CandleStore, storage.BackfillStore,
// storage.StatusStore, and storage.AuditStore against PostgreSQL via
// database/sql and github.com/lib/pq, following the query style of the
// rest of this codebase's storage layer.
package postgres

import (
	"database/sql"

	"github.com/candlewarehouse/engine/internal/app/storage"
)

// Store implements every storage interface against a shared *sql.DB.
type Store struct {
	db *sql.DB
}

// New wraps an opened *sql.DB. Callers own the DB's lifecycle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var (
	_ storage.CandleStore   = (*Store)(nil)
	_ storage.BackfillStore = (*Store)(nil)
	_ storage.StatusStore   = (*Store)(nil)
	_ storage.AuditStore    = (*Store)(nil)
)
