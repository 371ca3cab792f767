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

const formColumns = `id, filing_id, user_id, form_version, status, is_locked,
	locked_at, unlocked_by, unlocked_at, unlock_reason,
	completion_percentage, submitted_at, created_at, updated_at`

// Create inserts a new form. The filing_id UNIQUE constraint turns a
// concurrent duplicate into sentinel.ErrConflict; callers re-fetch the
// winner and continue.
func (s *Store) Create(ctx context.Context, form *models.Form) error {
	const query = `
		INSERT INTO forms (id, filing_id, user_id, form_version, status,
			completion_percentage, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(form.ID), uuid.UUID(form.FilingID), uuid.UUID(form.UserID),
		form.Version, string(form.Status), form.CompletionPercentage,
		form.CreatedAt, form.UpdatedAt)
	if err != nil {
		if isPQCode(err, uniqueViolation) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert form: %w", err)
	}
	return nil
}

func (s *Store) FindByFiling(ctx context.Context, filingID id.FilingID) (*models.Form, error) {
	query := `SELECT ` + formColumns + ` FROM forms WHERE filing_id = $1`
	return s.scanForm(s.db.QueryRowContext(ctx, query, uuid.UUID(filingID)))
}

func (s *Store) FindByID(ctx context.Context, formID id.FormID) (*models.Form, error) {
	query := `SELECT ` + formColumns + ` FROM forms WHERE id = $1`
	return s.scanForm(s.db.QueryRowContext(ctx, query, uuid.UUID(formID)))
}

func (s *Store) UpdateCompletion(ctx context.Context, formID id.FormID, pct int, now time.Time) error {
	const query = `UPDATE forms SET completion_percentage = $2, updated_at = $3 WHERE id = $1`

	res, err := s.db.ExecContext(ctx, query, uuid.UUID(formID), pct, now)
	if err != nil {
		return fmt.Errorf("update completion: %w", err)
	}
	return s.requireRow(ctx, res, formID, sentinel.ErrNotFound)
}

// Submit transitions to submitted+locked in one conditional statement.
// The WHERE clause is the lock guard: a form already submitted and locked
// matches zero rows.
func (s *Store) Submit(ctx context.Context, formID id.FormID, now time.Time) error {
	const query = `
		UPDATE forms
		SET status = 'submitted', is_locked = TRUE, locked_at = $2,
			submitted_at = $2, completion_percentage = 100, updated_at = $2
		WHERE id = $1 AND NOT (status = 'submitted' AND is_locked)`

	res, err := s.db.ExecContext(ctx, query, uuid.UUID(formID), now)
	if err != nil {
		return fmt.Errorf("submit form: %w", err)
	}
	return s.requireRow(ctx, res, formID, sentinel.ErrInvalidState)
}

// Unlock clears the lock on a submitted form so the client can amend and
// resubmit. Only a submitted, locked form matches.
func (s *Store) Unlock(ctx context.Context, formID id.FormID, by id.UserID, reason string, now time.Time) error {
	const query = `
		UPDATE forms
		SET is_locked = FALSE, unlocked_by = $2, unlocked_at = $3,
			unlock_reason = $4, updated_at = $3
		WHERE id = $1 AND status = 'submitted' AND is_locked`

	res, err := s.db.ExecContext(ctx, query, uuid.UUID(formID), uuid.UUID(by), now, reason)
	if err != nil {
		return fmt.Errorf("unlock form: %w", err)
	}
	return s.requireRow(ctx, res, formID, sentinel.ErrInvalidState)
}

// Delete removes a form; answers, progress rows, and document metadata go
// with it via ON DELETE CASCADE. Locked forms match zero rows.
func (s *Store) Delete(ctx context.Context, formID id.FormID) error {
	const query = `
		DELETE FROM forms
		WHERE id = $1 AND NOT (status = 'submitted' AND is_locked)`

	res, err := s.db.ExecContext(ctx, query, uuid.UUID(formID))
	if err != nil {
		return fmt.Errorf("delete form: %w", err)
	}
	return s.requireRow(ctx, res, formID, sentinel.ErrLocked)
}

// requireRow maps a zero-row conditional write to ErrNotFound when the
// form does not exist, or to stateErr when it does (the guard rejected it).
func (s *Store) requireRow(ctx context.Context, res sql.Result, formID id.FormID, stateErr error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM forms WHERE id = $1)`, uuid.UUID(formID)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check form exists: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return stateErr
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanForm(row rowScanner) (*models.Form, error) {
	var (
		form         models.Form
		formID       uuid.UUID
		filingID     uuid.UUID
		userID       uuid.UUID
		status       string
		lockedAt     sql.NullTime
		unlockedBy   uuid.NullUUID
		unlockedAt   sql.NullTime
		unlockReason sql.NullString
		submittedAt  sql.NullTime
	)
	err := row.Scan(&formID, &filingID, &userID, &form.Version, &status,
		&form.IsLocked, &lockedAt, &unlockedBy, &unlockedAt, &unlockReason,
		&form.CompletionPercentage, &submittedAt, &form.CreatedAt, &form.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan form: %w", err)
	}

	form.ID = id.FormID(formID)
	form.FilingID = id.FilingID(filingID)
	form.UserID = id.UserID(userID)
	form.Status = models.FormStatus(status)
	if lockedAt.Valid {
		form.LockedAt = &lockedAt.Time
	}
	if unlockedBy.Valid {
		by := id.UserID(unlockedBy.UUID)
		form.UnlockedBy = &by
	}
	if unlockedAt.Valid {
		form.UnlockedAt = &unlockedAt.Time
	}
	form.UnlockReason = unlockReason.String
	if submittedAt.Valid {
		form.SubmittedAt = &submittedAt.Time
	}
	return &form, nil
}
