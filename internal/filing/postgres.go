package filing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	id "taxfile/pkg/domain"
	"taxfile/pkg/platform/sentinel"
)

// PostgresLookup resolves filings from the shared database. The filing
// service owns the rows; the engine only reads them.
type PostgresLookup struct {
	db *sql.DB
}

func NewPostgresLookup(db *sql.DB) *PostgresLookup {
	return &PostgresLookup{db: db}
}

func (l *PostgresLookup) FindByID(ctx context.Context, filingID id.FilingID) (Filing, error) {
	const query = `SELECT id, user_id, tax_year FROM filings WHERE id = $1`

	var (
		fID     uuid.UUID
		ownerID uuid.UUID
		taxYear int
	)
	err := l.db.QueryRowContext(ctx, query, uuid.UUID(filingID)).Scan(&fID, &ownerID, &taxYear)
	if errors.Is(err, sql.ErrNoRows) {
		return Filing{}, sentinel.ErrNotFound
	}
	if err != nil {
		return Filing{}, fmt.Errorf("find filing: %w", err)
	}
	return Filing{ID: id.FilingID(fID), OwnerID: id.UserID(ownerID), TaxYear: taxYear}, nil
}
