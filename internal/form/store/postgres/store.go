// Package postgres implements the engine stores over database/sql with
// raw SQL. Invariant enforcement lives in the statements themselves:
// conditional UPDATEs carry the lock and immutability guards so a racing
// writer cannot observe a stale check.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"taxfile/internal/catalog"
)

const (
	uniqueViolation     = pq.ErrorCode("23505")
	foreignKeyViolation = pq.ErrorCode("23503")
)

// Store is the Postgres backing for forms, answers, documents, and
// section progress. All entity families share the one handle so
// cross-entity guards run inside a single transaction.
type Store struct {
	db      *sql.DB
	catalog *catalog.Catalog
}

// New returns a Store decoding answer values against the given catalog.
func New(db *sql.DB, c *catalog.Catalog) *Store {
	return &Store{db: db, catalog: c}
}

func isPQCode(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == code
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
