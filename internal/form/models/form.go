package models

import (
	"time"

	id "taxfile/pkg/domain"
)

// FormStatus is the lifecycle state of a questionnaire instance.
type FormStatus string

const (
	StatusDraft     FormStatus = "draft"
	StatusSubmitted FormStatus = "submitted"
)

// CurrentFormVersion tags newly created forms with the catalog generation
// they were started against.
const CurrentFormVersion = "t1-2025"

// Form is the questionnaire instance and its lifecycle state for one
// filing. At most one Form exists per filing (store-enforced uniqueness).
type Form struct {
	ID       id.FormID
	FilingID id.FilingID
	// UserID is the filing owner at creation time; ownership checks
	// compare it against the caller principal.
	UserID  id.UserID
	Version string

	Status   FormStatus
	IsLocked bool
	LockedAt *time.Time

	UnlockedBy   *id.UserID
	UnlockedAt   *time.Time
	UnlockReason string

	CompletionPercentage int
	SubmittedAt          *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Editable reports whether answers may currently be mutated. A submitted
// form becomes editable again only through an admin unlock.
func (f *Form) Editable() bool {
	return !(f.Status == StatusSubmitted && f.IsLocked)
}

// NewForm returns the initial draft state for a filing.
func NewForm(filingID id.FilingID, owner id.UserID, now time.Time) *Form {
	return &Form{
		ID:        id.NewFormID(),
		FilingID:  filingID,
		UserID:    owner,
		Version:   CurrentFormVersion,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
