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

const documentColumns = `id, form_id, slot, file_name, is_attached,
	is_approved, approved_by, approved_at, rejection_reason, created_at, updated_at`

// CreateDocument registers metadata for an uploaded document. Attaching is
// a user-side edit, so the owning form's lock is checked under FOR UPDATE
// in the same transaction as the insert. The (form_id, slot) UNIQUE
// constraint maps to ErrConflict.
func (s *Store) CreateDocument(ctx context.Context, doc *models.DocumentMetadata) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		var isLocked bool
		err := tx.QueryRowContext(ctx,
			`SELECT status, is_locked FROM forms WHERE id = $1 FOR UPDATE`,
			uuid.UUID(doc.FormID)).Scan(&status, &isLocked)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock form row: %w", err)
		}
		if status == string(models.StatusSubmitted) && isLocked {
			return sentinel.ErrLocked
		}

		const insert = `
			INSERT INTO document_metadata (id, form_id, slot, file_name,
				is_attached, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`

		_, err = tx.ExecContext(ctx, insert,
			uuid.UUID(doc.ID), uuid.UUID(doc.FormID), doc.Slot, doc.FileName,
			doc.IsAttached, doc.CreatedAt, doc.UpdatedAt)
		if err != nil {
			if isPQCode(err, uniqueViolation) {
				return sentinel.ErrConflict
			}
			return fmt.Errorf("insert document: %w", err)
		}
		return nil
	})
}

func (s *Store) FindDocument(ctx context.Context, docID id.DocumentID) (*models.DocumentMetadata, error) {
	query := `SELECT ` + documentColumns + ` FROM document_metadata WHERE id = $1`
	return scanDocument(s.db.QueryRowContext(ctx, query, uuid.UUID(docID)))
}

func (s *Store) ListDocuments(ctx context.Context, formID id.FormID) ([]*models.DocumentMetadata, error) {
	query := `SELECT ` + documentColumns + ` FROM document_metadata
		WHERE form_id = $1 ORDER BY slot`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(formID))
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []*models.DocumentMetadata
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

// ApproveDocument freezes the record. The IS DISTINCT FROM TRUE guard
// keeps the write conditional: an already-approved row matches zero rows
// and the second approval fails with ErrInvalidState.
func (s *Store) ApproveDocument(ctx context.Context, docID id.DocumentID, by id.UserID, now time.Time) error {
	const query = `
		UPDATE document_metadata
		SET is_approved = TRUE, approved_by = $2, approved_at = $3,
			rejection_reason = '', updated_at = $3
		WHERE id = $1 AND is_approved IS DISTINCT FROM TRUE`

	res, err := s.db.ExecContext(ctx, query, uuid.UUID(docID), uuid.UUID(by), now)
	if err != nil {
		return fmt.Errorf("approve document: %w", err)
	}
	return s.requireDocumentRow(ctx, res, docID, sentinel.ErrInvalidState)
}

// RejectDocument records a rejection with its reason. Approved rows are
// frozen: the guard turns the write into ErrImmutable.
func (s *Store) RejectDocument(ctx context.Context, docID id.DocumentID, reason string, now time.Time) error {
	const query = `
		UPDATE document_metadata
		SET is_approved = FALSE, rejection_reason = $2, updated_at = $3
		WHERE id = $1 AND is_approved IS DISTINCT FROM TRUE`

	res, err := s.db.ExecContext(ctx, query, uuid.UUID(docID), reason, now)
	if err != nil {
		return fmt.Errorf("reject document: %w", err)
	}
	return s.requireDocumentRow(ctx, res, docID, sentinel.ErrImmutable)
}

// UpdateDocument replaces the mutable fields (file name, attachment
// state). The transaction locks the owning form row first: approved
// documents are frozen, locked forms reject user edits.
func (s *Store) UpdateDocument(ctx context.Context, doc *models.DocumentMetadata) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var (
			approved sql.NullBool
			status   string
			isLocked bool
		)
		err := tx.QueryRowContext(ctx, `
			SELECT d.is_approved, f.status, f.is_locked
			FROM document_metadata d
			JOIN forms f ON f.id = d.form_id
			WHERE d.id = $1
			FOR UPDATE`,
			uuid.UUID(doc.ID)).Scan(&approved, &status, &isLocked)
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock document row: %w", err)
		}
		if approved.Valid && approved.Bool {
			return sentinel.ErrImmutable
		}
		if status == string(models.StatusSubmitted) && isLocked {
			return sentinel.ErrLocked
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE document_metadata
			SET file_name = $2, is_attached = $3, updated_at = $4
			WHERE id = $1`,
			uuid.UUID(doc.ID), doc.FileName, doc.IsAttached, doc.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update document: %w", err)
		}
		return nil
	})
}

func (s *Store) requireDocumentRow(ctx context.Context, res sql.Result, docID id.DocumentID, frozenErr error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}
	var exists bool
	err = s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM document_metadata WHERE id = $1)`,
		uuid.UUID(docID)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check document exists: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return frozenErr
}

func scanDocument(row rowScanner) (*models.DocumentMetadata, error) {
	var (
		doc        models.DocumentMetadata
		docID      uuid.UUID
		formID     uuid.UUID
		approved   sql.NullBool
		approvedBy uuid.NullUUID
		approvedAt sql.NullTime
	)
	err := row.Scan(&docID, &formID, &doc.Slot, &doc.FileName, &doc.IsAttached,
		&approved, &approvedBy, &approvedAt, &doc.RejectionReason,
		&doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}

	doc.ID = id.DocumentID(docID)
	doc.FormID = id.FormID(formID)
	if approved.Valid {
		v := approved.Bool
		doc.IsApproved = &v
	}
	if approvedBy.Valid {
		by := id.UserID(approvedBy.UUID)
		doc.ApprovedBy = &by
	}
	if approvedAt.Valid {
		doc.ApprovedAt = &approvedAt.Time
	}
	return &doc, nil
}
