package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: write lost a uniqueness race (e.g. two first-saves creating one form)
// - ErrLocked: owning form is submitted and locked, mutation rejected at write time
// - ErrImmutable: record is approved and frozen, mutation rejected at write time
// - ErrInvalidState: entity in wrong state for requested operation
//
// For validation errors (bad input, missing fields), use pkg/domain-errors
// directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrLocked       = errors.New("locked")
	ErrImmutable    = errors.New("immutable")
	ErrInvalidState = errors.New("invalid state")
)
