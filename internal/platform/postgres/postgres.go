// Package postgres owns the database handle and the engine schema.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// schema is the engine's DDL. Uniqueness and cascade rules here back the
// invariants the stores rely on:
//   - forms.filing_id UNIQUE: at most one form per filing, enforced at
//     write time so concurrent first-saves race safely (23505 + re-fetch)
//   - answers PK (form_id, field_path): idempotent upsert target
//   - ON DELETE CASCADE: form deletion removes answers, progress, documents
//
// The filings table is owned by the upstream filing service; it appears
// here so single-database deployments bootstrap without a migration step.
const schema = `
CREATE TABLE IF NOT EXISTS filings (
	id       UUID PRIMARY KEY,
	user_id  UUID NOT NULL,
	tax_year INT NOT NULL
);

CREATE TABLE IF NOT EXISTS forms (
	id                    UUID PRIMARY KEY,
	filing_id             UUID NOT NULL UNIQUE,
	user_id               UUID NOT NULL,
	form_version          TEXT NOT NULL,
	status                TEXT NOT NULL DEFAULT 'draft',
	is_locked             BOOLEAN NOT NULL DEFAULT FALSE,
	locked_at             TIMESTAMPTZ,
	unlocked_by           UUID,
	unlocked_at           TIMESTAMPTZ,
	unlock_reason         TEXT,
	completion_percentage INT NOT NULL DEFAULT 0,
	submitted_at          TIMESTAMPTZ,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS answers (
	form_id    UUID NOT NULL REFERENCES forms(id) ON DELETE CASCADE,
	field_path TEXT NOT NULL,
	kind       TEXT NOT NULL,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (form_id, field_path)
);

CREATE TABLE IF NOT EXISTS section_progress (
	form_id      UUID NOT NULL REFERENCES forms(id) ON DELETE CASCADE,
	step_id      TEXT NOT NULL,
	section_id   TEXT NOT NULL DEFAULT '',
	is_complete  BOOLEAN NOT NULL DEFAULT FALSE,
	is_reviewed  BOOLEAN NOT NULL DEFAULT FALSE,
	reviewed_by  UUID,
	reviewed_at  TIMESTAMPTZ,
	review_notes TEXT,
	PRIMARY KEY (form_id, step_id, section_id)
);

CREATE TABLE IF NOT EXISTS document_metadata (
	id               UUID PRIMARY KEY,
	form_id          UUID NOT NULL REFERENCES forms(id) ON DELETE CASCADE,
	slot             TEXT NOT NULL,
	file_name        TEXT NOT NULL DEFAULT '',
	is_attached      BOOLEAN NOT NULL DEFAULT FALSE,
	is_approved      BOOLEAN,
	approved_by      UUID,
	approved_at      TIMESTAMPTZ,
	rejection_reason TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL,
	UNIQUE (form_id, slot)
);
`

// EnsureSchema applies the engine DDL. Statements are idempotent so this is
// safe to run on every startup.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
