package models

import (
	"time"

	id "taxfile/pkg/domain"
)

// DocumentMetadata tracks the approval workflow for one required-document
// slot. The bytes live with the external storage collaborator; the engine
// only owns this record.
//
// Invariant: once IsApproved is true the record is frozen. Stores enforce
// this in the same write that would mutate the row.
type DocumentMetadata struct {
	ID     id.DocumentID
	FormID id.FormID
	// Slot names the catalog document rule this record satisfies.
	Slot     string
	FileName string

	IsAttached bool
	// IsApproved is nil until an admin decides, then true (frozen) or
	// false (rejected, may be re-reviewed after re-upload).
	IsApproved      *bool
	ApprovedBy      *id.UserID
	ApprovedAt      *time.Time
	RejectionReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Approved reports whether the document has been approved.
func (d *DocumentMetadata) Approved() bool {
	return d.IsApproved != nil && *d.IsApproved
}

// Rejected reports whether the document was rejected.
func (d *DocumentMetadata) Rejected() bool {
	return d.IsApproved != nil && !*d.IsApproved
}
