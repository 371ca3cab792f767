package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"taxfile/internal/form/models"
	id "taxfile/pkg/domain"
	"taxfile/pkg/platform/sentinel"
)

// SetStepCompletion upserts step-level completion flags. A missing form
// surfaces through the FK as ErrNotFound.
func (s *Store) SetStepCompletion(ctx context.Context, formID id.FormID, flags map[string]bool) error {
	const upsert = `
		INSERT INTO section_progress (form_id, step_id, section_id, is_complete)
		VALUES ($1, $2, '', $3)
		ON CONFLICT (form_id, step_id, section_id)
		DO UPDATE SET is_complete = EXCLUDED.is_complete`

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for step, complete := range flags {
			if _, err := tx.ExecContext(ctx, upsert, uuid.UUID(formID), step, complete); err != nil {
				if isPQCode(err, foreignKeyViolation) {
					return sentinel.ErrNotFound
				}
				return fmt.Errorf("upsert progress %s: %w", step, err)
			}
		}
		return nil
	})
}

// Review records an admin review on a step or a section within it.
func (s *Store) Review(ctx context.Context, formID id.FormID, stepID, sectionID string, by id.UserID, notes string, now time.Time) error {
	const upsert = `
		INSERT INTO section_progress (form_id, step_id, section_id,
			is_reviewed, reviewed_by, reviewed_at, review_notes)
		VALUES ($1, $2, $3, TRUE, $4, $5, $6)
		ON CONFLICT (form_id, step_id, section_id)
		DO UPDATE SET is_reviewed = TRUE, reviewed_by = EXCLUDED.reviewed_by,
			reviewed_at = EXCLUDED.reviewed_at, review_notes = EXCLUDED.review_notes`

	_, err := s.db.ExecContext(ctx, upsert,
		uuid.UUID(formID), stepID, sectionID, uuid.UUID(by), now, notes)
	if err != nil {
		if isPQCode(err, foreignKeyViolation) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("upsert review: %w", err)
	}
	return nil
}

func (s *Store) ListProgress(ctx context.Context, formID id.FormID) ([]*models.SectionProgress, error) {
	const query = `
		SELECT form_id, step_id, section_id, is_complete,
			is_reviewed, reviewed_by, reviewed_at, review_notes
		FROM section_progress
		WHERE form_id = $1
		ORDER BY step_id, section_id`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(formID))
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	var out []*models.SectionProgress
	for rows.Next() {
		var (
			row        models.SectionProgress
			rowFormID  uuid.UUID
			reviewedBy uuid.NullUUID
			reviewedAt sql.NullTime
			notes      sql.NullString
		)
		if err := rows.Scan(&rowFormID, &row.StepID, &row.SectionID,
			&row.IsComplete, &row.IsReviewed, &reviewedBy, &reviewedAt, &notes); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		row.FormID = id.FormID(rowFormID)
		if reviewedBy.Valid {
			by := id.UserID(reviewedBy.UUID)
			row.ReviewedBy = &by
		}
		if reviewedAt.Valid {
			row.ReviewedAt = &reviewedAt.Time
		}
		row.ReviewNotes = notes.String
		out = append(out, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}
	return out, nil
}
