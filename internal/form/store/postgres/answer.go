package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taxfile/internal/form/models"
	id "taxfile/pkg/domain"
	"taxfile/pkg/platform/sentinel"
)

// UpsertBatch writes the whole batch inside one transaction. The form row
// is locked with FOR UPDATE before the lock check so a concurrent submit
// serializes against the writes: either it lands first and the batch is
// rejected, or the batch commits before the transition.
func (s *Store) UpsertBatch(ctx context.Context, formID id.FormID, values map[string]models.Value, now time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		var isLocked bool
		err := tx.QueryRowContext(ctx,
			`SELECT status, is_locked FROM forms WHERE id = $1 FOR UPDATE`,
			uuid.UUID(formID)).Scan(&status, &isLocked)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock form row: %w", err)
		}
		if status == string(models.StatusSubmitted) && isLocked {
			return sentinel.ErrLocked
		}

		const upsert = `
			INSERT INTO answers (form_id, field_path, kind, value, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (form_id, field_path)
			DO UPDATE SET kind = EXCLUDED.kind, value = EXCLUDED.value,
				updated_at = EXCLUDED.updated_at`

		for path, value := range values {
			raw, err := value.EncodeJSON()
			if err != nil {
				return fmt.Errorf("encode answer %s: %w", path, err)
			}
			if _, err := tx.ExecContext(ctx, upsert,
				uuid.UUID(formID), path, string(value.Kind), raw, now); err != nil {
				return fmt.Errorf("upsert answer %s: %w", path, err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE forms SET updated_at = $2 WHERE id = $1`,
			uuid.UUID(formID), now); err != nil {
			return fmt.Errorf("touch form: %w", err)
		}
		return nil
	})
}

// All loads every stored answer for the form, decoded against the catalog.
// An unknown form yields an empty map, which backs the virtual-draft read.
func (s *Store) All(ctx context.Context, formID id.FormID) (map[string]models.Value, error) {
	const query = `SELECT field_path, value FROM answers WHERE form_id = $1`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(formID))
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.Value)
	for rows.Next() {
		var path string
		var raw []byte
		if err := rows.Scan(&path, &raw); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		spec, ok := s.catalog.Field(path)
		if !ok {
			return nil, fmt.Errorf("stored answer %s not in catalog", path)
		}
		value, err := models.DecodeJSON(spec, raw)
		if err != nil {
			return nil, fmt.Errorf("decode answer: %w", err)
		}
		out[path] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate answers: %w", err)
	}
	return out, nil
}
