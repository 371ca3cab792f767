// Package domain holds strongly typed identifiers shared across the
// service. IDs are distinct types over uuid.UUID so the compiler rejects
// cross-assignment (a FilingID can never be passed where a FormID is
// expected).
//
// Construct IDs via the Parse* functions at trust boundaries (HTTP
// handlers, store scans); direct casting bypasses validation.
package domain

import (
	"github.com/google/uuid"

	dErrors "taxfile/pkg/domain-errors"
)

type (
	// UserID identifies an authenticated principal.
	UserID uuid.UUID
	// FilingID identifies the external yearly filing record a form belongs to.
	FilingID uuid.UUID
	// FormID identifies a questionnaire instance.
	FormID uuid.UUID
	// DocumentID identifies a supporting document metadata record.
	DocumentID uuid.UUID
)

// NewUserID returns a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewFilingID returns a fresh random filing ID.
func NewFilingID() FilingID { return FilingID(uuid.New()) }

// NewFormID returns a fresh random form ID.
func NewFormID() FormID { return FormID(uuid.New()) }

// NewDocumentID returns a fresh random document ID.
func NewDocumentID() DocumentID { return DocumentID(uuid.New()) }

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, what+" must not be the nil UUID")
	}
	return parsed, nil
}

// ParseUserID validates and returns a UserID.
func ParseUserID(s string) (UserID, error) {
	parsed, err := parseUUID(s, "user id")
	return UserID(parsed), err
}

// ParseFilingID validates and returns a FilingID.
func ParseFilingID(s string) (FilingID, error) {
	parsed, err := parseUUID(s, "filing id")
	return FilingID(parsed), err
}

// ParseFormID validates and returns a FormID.
func ParseFormID(s string) (FormID, error) {
	parsed, err := parseUUID(s, "form id")
	return FormID(parsed), err
}

// ParseDocumentID validates and returns a DocumentID.
func ParseDocumentID(s string) (DocumentID, error) {
	parsed, err := parseUUID(s, "document id")
	return DocumentID(parsed), err
}

func (id UserID) String() string     { return uuid.UUID(id).String() }
func (id FilingID) String() string   { return uuid.UUID(id).String() }
func (id FormID) String() string     { return uuid.UUID(id).String() }
func (id DocumentID) String() string { return uuid.UUID(id).String() }

// MarshalText renders IDs in canonical UUID form for JSON and logs; the
// defined types do not inherit uuid.UUID's encoding methods.
func (id UserID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id FilingID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id FormID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id DocumentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = UserID(parsed)
	return nil
}

func (id *FilingID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = FilingID(parsed)
	return nil
}

func (id *FormID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = FormID(parsed)
	return nil
}

func (id *DocumentID) UnmarshalText(b []byte) error {
	parsed, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = DocumentID(parsed)
	return nil
}

func (id UserID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id FilingID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id FormID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
